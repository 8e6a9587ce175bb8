package models

// UserProfile is the public profile of an Instagram account.
type UserProfile struct {
	Username   string `json:"username"`
	FullName   string `json:"full_name"`
	Biography  string `json:"biography"`
	Followers  int64  `json:"followers"`
	Followees  int64  `json:"followees"`
	MediaCount int64  `json:"media_count"`
	IsPrivate  bool   `json:"is_private"`
}
