package history

import (
	"time"

	"github.com/nachoal/urban-quest/vision"
)

// Turn is one user input and model response pair.
// A Turn is never modified after it has been appended.
type Turn struct {
	ID           string        `json:"id"`
	InputText    string        `json:"input_text"`
	ResponseText string        `json:"response_text"`
	Image        *vision.Image `json:"image,omitempty"`
	Failed       bool          `json:"failed,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// HasImage reports whether the turn carried an image
func (t Turn) HasImage() bool {
	return t.Image != nil && len(t.Image.Data) > 0
}

func (t Turn) clone() Turn {
	t.Image = t.Image.Clone()
	return t
}
