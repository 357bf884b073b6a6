package model

// Media types a post may carry.
const (
	MediaImage = "image"
	MediaVideo = "video"
	MediaPDF   = "pdf"
)

// TimestampNow is the display timestamp stamped on freshly created posts
// and notifications.
const TimestampNow = "now"

// Post is a feed entry. Timestamp is a display string ("now", "2 hours ago"),
// not a parseable time.
type Post struct {
	ID        int64   `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64   `gorm:"index;not null" json:"userId"`
	Content   string  `gorm:"type:text;not null" json:"content"`
	MediaType *string `gorm:"size:16" json:"mediaType"`
	MediaURL  *string `gorm:"size:512" json:"mediaUrl"`
	Likes     int     `gorm:"default:0" json:"likes"`
	Comments  int     `gorm:"default:0" json:"comments"`
	Timestamp string  `gorm:"size:64;not null" json:"timestamp"`
}

// NewPost holds the client-supplied fields of a post.
type NewPost struct {
	Content   string
	MediaType *string
	MediaURL  *string
}

// PostWithUser is a post joined with its owner.
type PostWithUser struct {
	Post
	User User `json:"user"`
}

// PostLike records that a user liked a post. Only consulted when like
// tracking is enabled on the store.
type PostLike struct {
	UserID int64 `gorm:"primaryKey;autoIncrement:false" json:"userId"`
	PostID int64 `gorm:"primaryKey;autoIncrement:false" json:"postId"`
}

// PostSave puts a post in a user's saved collection.
type PostSave struct {
	UserID int64 `gorm:"primaryKey;autoIncrement:false" json:"userId"`
	PostID int64 `gorm:"primaryKey;autoIncrement:false;index" json:"postId"`
}

// PostHide removes a post from one user's feed.
type PostHide struct {
	UserID int64 `gorm:"primaryKey;autoIncrement:false" json:"userId"`
	PostID int64 `gorm:"primaryKey;autoIncrement:false;index" json:"postId"`
}
