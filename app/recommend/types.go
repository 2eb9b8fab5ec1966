package recommend

import (
	"errors"
	"math/rand"
	"time"

	"github.com/lysyi3m/meme-comb/app/meme"
)

const ProfilesSnapshot = "user_preferences.json"

var (
	ErrMalformedItem = errors.New("item has no id")
	ErrInvalidRating = errors.New("rating must be +1 or -1")
)

const (
	Like    = 1
	Dislike = -1
)

const (
	neutralScore = 0.5
	likedScore   = 0.9
	dislikeScore = 0.1
	scoreScale   = 0.1
)

// Profile is a user's accumulated taste. Keyword weights only grow.
type Profile struct {
	LikedKeywords    map[string]float64 `json:"liked_keywords"`
	DislikedKeywords map[string]float64 `json:"disliked_keywords"`
	RatedItems       map[string]int     `json:"rated_items"`
	TotalRatings     int                `json:"total_ratings"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

func newProfile() Profile {
	return Profile{
		LikedKeywords:    make(map[string]float64),
		DislikedKeywords: make(map[string]float64),
		RatedItems:       make(map[string]int),
	}
}

type Options struct {
	MinRatings  int // ratings needed before personalised ranking kicks in
	MaxKeywords int
	Rand        *rand.Rand
}

func DefaultOptions() Options {
	return Options{
		MinRatings:  5,
		MaxKeywords: 15,
	}
}

type Stats struct {
	TotalRatings       int      `json:"total_ratings"`
	Liked              int      `json:"liked"`
	Disliked           int      `json:"disliked"`
	TopKeywords        []string `json:"top_keywords"`
	HasRecommendations bool     `json:"has_recommendations"`
}

// Analysis explains what the model has learned about a user.
type Analysis struct {
	Ready           bool        `json:"ready"`
	TotalRatings    int         `json:"total_ratings"`
	RatingsNeeded   int         `json:"ratings_needed"`
	TopKeywords     []string    `json:"top_keywords"`
	Recommendations []meme.Item `json:"recommendations"`
}
