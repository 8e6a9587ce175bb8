package instagram

import (
	"time"
)

// MediaItem is one media entry of a post as reported by the source.
type MediaItem struct {
	Type string // image, video
	URL  string
}

// PostDetail is the normalized detail of a single saved post. Absent
// optional fields get zero values (empty caption, empty media set).
type PostDetail struct {
	ID       string
	Author   string
	Caption  string
	TakenAt  time.Time
	Likes    int
	Comments int
	Media    []MediaItem
}

// Wire shapes of the web API responses we consume.

type loginResponse struct {
	Authenticated     bool   `json:"authenticated"`
	User              bool   `json:"user"`
	Status            string `json:"status"`
	TwoFactorRequired bool   `json:"two_factor_required"`
	TwoFactorInfo     struct {
		TwoFactorIdentifier string `json:"two_factor_identifier"`
	} `json:"two_factor_info"`
}

type savedFeedResponse struct {
	Items []struct {
		Media feedMedia `json:"media"`
	} `json:"items"`
	MoreAvailable bool   `json:"more_available"`
	NextMaxID     string `json:"next_max_id"`
	Status        string `json:"status"`
}

type feedMedia struct {
	Code string `json:"code"`
}

type mediaInfoResponse struct {
	Items  []mediaInfoItem `json:"items"`
	Status string          `json:"status"`
}

type mediaInfoItem struct {
	Code    string `json:"code"`
	TakenAt int64  `json:"taken_at"`
	User    struct {
		Username string `json:"username"`
	} `json:"user"`
	Caption *struct {
		Text string `json:"text"`
	} `json:"caption"`
	LikeCount      int `json:"like_count"`
	CommentCount   int `json:"comment_count"`
	MediaType      int `json:"media_type"` // 1 image, 2 video, 8 carousel
	ImageVersions2 struct {
		Candidates []struct {
			URL string `json:"url"`
		} `json:"candidates"`
	} `json:"image_versions2"`
	VideoVersions []struct {
		URL string `json:"url"`
	} `json:"video_versions"`
	CarouselMedia []mediaInfoItem `json:"carousel_media"`
}

type webProfileResponse struct {
	Data struct {
		User *struct {
			Username       string `json:"username"`
			FullName       string `json:"full_name"`
			Biography      string `json:"biography"`
			IsPrivate      bool   `json:"is_private"`
			EdgeFollowedBy struct {
				Count int64 `json:"count"`
			} `json:"edge_followed_by"`
			EdgeFollow struct {
				Count int64 `json:"count"`
			} `json:"edge_follow"`
			EdgeOwnerToTimelineMedia struct {
				Count int64 `json:"count"`
			} `json:"edge_owner_to_timeline_media"`
		} `json:"user"`
	} `json:"data"`
	Status string `json:"status"`
}

const (
	mediaTypeImage    = 1
	mediaTypeVideo    = 2
	mediaTypeCarousel = 8
)

func (it *mediaInfoItem) toDetail() *PostDetail {
	detail := &PostDetail{
		ID:       it.Code,
		Author:   it.User.Username,
		TakenAt:  time.Unix(it.TakenAt, 0).UTC(),
		Likes:    it.LikeCount,
		Comments: it.CommentCount,
	}
	if it.Caption != nil {
		detail.Caption = it.Caption.Text
	}
	detail.Media = it.mediaItems()
	return detail
}

func (it *mediaInfoItem) mediaItems() []MediaItem {
	if it.MediaType == mediaTypeCarousel {
		var out []MediaItem
		for _, child := range it.CarouselMedia {
			out = append(out, child.mediaItems()...)
		}
		return out
	}

	if it.MediaType == mediaTypeVideo && len(it.VideoVersions) > 0 {
		return []MediaItem{{Type: "video", URL: it.VideoVersions[0].URL}}
	}
	if len(it.ImageVersions2.Candidates) > 0 {
		return []MediaItem{{Type: "image", URL: it.ImageVersions2.Candidates[0].URL}}
	}
	return nil
}
