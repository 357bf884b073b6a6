package model

import "time"

// SeedData is the fixed dataset a fresh store starts with.
type SeedData struct {
	Users         []User
	Posts         []Post
	Chats         []Chat
	Notifications []Notification
	Friendships   []Friendship
}

func strPtr(s string) *string { return &s }
func idPtr(id int64) *int64   { return &id }

// Seed builds the startup dataset. Chat timestamps are relative to now.
func Seed(now time.Time) SeedData {
	user := func(id int64, username, studentID, fullName, email, birthday, img string) User {
		return User{
			ID:           id,
			Username:     username,
			StudentID:    studentID,
			Password:     "1234",
			FullName:     fullName,
			Email:        strPtr(email),
			Birthday:     strPtr(birthday),
			ProfileImage: strPtr(img),
			Course:       strPtr(DefaultCourse),
		}
	}

	return SeedData{
		Users: []User{
			user(1, "Hafij", "115002", "Hafij Al Asad", "hafij@university.edu", "1998-05-15", "assets/1.jpg"),
			user(2, "Rukshana", "CS002", "Rukshana Begum", "rukshana@university.edu", "1999-03-22", "assets/2.webp"),
			user(3, "Noyon", "CS003", "Md. Noyon", "noyon@university.edu", "1998-11-08", "assets/3.jpg"),
			user(4, "aarav", "CS004", "Aarav Sharma", "aarav@university.edu", "1999-07-14", "assets/10.jpg"),
			user(5, "farhan", "CS005", "Farhan Ahmed", "farhan@university.edu", "1998-11-08", "assets/9.jpg"),
		},
		Posts: []Post{
			{
				ID:     1,
				UserID: 2,
				Content: "Just finished my Computer Networks assignment! The concepts of TCP/IP protocols are fascinating. " +
					"Anyone else working on similar projects? Would love to discuss and share insights! 📚💻",
				MediaType: strPtr(MediaImage),
				MediaURL:  strPtr("https://images.unsplash.com/photo-1555066931-4365d14bab8c?auto=format&fit=crop&w=800&h=400"),
				Likes:     24,
				Comments:  8,
				Timestamp: "2 hours ago",
			},
			{
				ID:        2,
				UserID:    3,
				Content:   "Sharing my Data Structures notes for the upcoming exam. Hope this helps everyone! 📖✨",
				MediaType: strPtr(MediaPDF),
				MediaURL:  strPtr("Data Structures - Complete Notes.pdf"),
				Likes:     42,
				Comments:  15,
				Timestamp: "5 hours ago",
			},
			{
				ID:        3,
				UserID:    4,
				Content:   "Quick tutorial on React Hooks I made for our web development study group! 🚀",
				MediaType: strPtr(MediaVideo),
				MediaURL:  strPtr("assets/React.mp4"),
				Likes:     67,
				Comments:  23,
				Timestamp: "1 day ago",
			},
		},
		Chats: []Chat{
			{ID: 1, FromUserID: 2, ToUserID: 1, Message: "Hey! Did you complete the assignment?", Timestamp: FormatISO(now.Add(-2 * time.Minute))},
			{ID: 2, FromUserID: 4, ToUserID: 1, Message: "Thanks for sharing the notes!", Timestamp: FormatISO(now.Add(-time.Hour))},
		},
		Notifications: []Notification{
			{ID: 1, UserID: 1, Type: NotifyLike, Content: "Aarav Sharma liked your post about Computer Networks", FromUserID: idPtr(2), Timestamp: "2 minutes ago"},
			{ID: 2, UserID: 1, Type: NotifyComment, Content: "Sarah Wilson commented on your post", FromUserID: idPtr(4), Timestamp: "1 hour ago"},
			{ID: 3, UserID: 1, Type: NotifyGeneral, Content: "Reminder: Tech Symposium tomorrow at 2 PM", Timestamp: "3 hours ago"},
			{ID: 4, UserID: 1, Type: NotifyFriendRequest, Content: "Aarav Sharma sent you a friend request", FromUserID: idPtr(4), Timestamp: "1 day ago"},
		},
		Friendships: []Friendship{
			{ID: 1, UserID: 1, FriendID: 2},
			{ID: 2, UserID: 2, FriendID: 1},
			{ID: 3, UserID: 1, FriendID: 3},
			{ID: 4, UserID: 3, FriendID: 1},
			{ID: 5, UserID: 1, FriendID: 5},
			{ID: 6, UserID: 5, FriendID: 1},
		},
	}
}
