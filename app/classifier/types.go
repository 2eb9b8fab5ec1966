package classifier

import (
	"context"
	"fmt"
)

type Reason string

const (
	ReasonEmpty          Reason = "empty"
	ReasonTooShort       Reason = "too_short"
	ReasonExcludedTopic  Reason = "excluded_topic"
	ReasonBlockedImage   Reason = "blocked_image"
	ReasonCampaignMarker Reason = "campaign_marker"
	ReasonCategoryScore  Reason = "category_score"
	ReasonPhrase         Reason = "phrase"
	ReasonPattern        Reason = "pattern"
	ReasonTag            Reason = "tag"
	ReasonOffTopic       Reason = "off_topic"
	ReasonRepetitive     Reason = "repetitive"
	ReasonMetadata       Reason = "metadata"
)

// Verdict is the total result of classification: either accepted, or
// rejected with a reason code and a human readable detail.
type Verdict struct {
	Accepted bool
	Reason   Reason
	Detail   string
}

func Accept() Verdict {
	return Verdict{Accepted: true}
}

func Reject(reason Reason, format string, args ...any) Verdict {
	return Verdict{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

func (v Verdict) String() string {
	if v.Accepted {
		return "accepted"
	}
	return fmt.Sprintf("rejected: %s: %s", v.Reason, v.Detail)
}

type Policy struct {
	Strict            bool // require an allow-listed topical keyword
	MinWords          int  // minimum words for text-only items, 0 disables
	MinWordsWithImage bool // apply MinWords to image captions as well
	CategoryThreshold int
	RepeatThreshold   int
	LongTextWords     int
	BlockOnReject     bool
}

func DefaultPolicy() Policy {
	return Policy{
		CategoryThreshold: 20,
		RepeatThreshold:   3,
		LongTextWords:     50,
		BlockOnReject:     true,
	}
}

// Registry is the part of the dedup store the classifier needs.
type Registry interface {
	IsBlocked(imageURL string) bool
	Block(ctx context.Context, imageURL string) error
}
