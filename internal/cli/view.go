package cli

import (
	"os"

	"github.com/MrEthical07/authsync"
)

// stateView is the JSON rendering of a reconciler state.
type stateView struct {
	Phase       string `json:"phase"`
	UserID      string `json:"user_id,omitempty"`
	Email       string `json:"email,omitempty"`
	Role        string `json:"role,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Points      int64  `json:"points,omitempty"`
	Initialized bool   `json:"initialized"`
	Loading     bool   `json:"loading"`
}

func viewOf(s authsync.State) stateView {
	v := stateView{
		Phase:       s.Phase().String(),
		UserID:      s.UserID(),
		Role:        string(s.Role()),
		Initialized: s.Initialized,
		Loading:     s.Loading,
	}
	if s.User != nil {
		v.Email = s.User.Email
	}
	if s.Profile != nil {
		v.DisplayName = s.Profile.DisplayName
		v.Points = s.Profile.Points
	}
	return v
}

// defaultToken returns the token the device starts with.
func defaultToken() string {
	return os.Getenv("AUTHSYNC_TOKEN")
}
