package display

import "github.com/router-for-me/authcode/internal/oauth"

// Multi fans every report out to each display in order.
type Multi []oauth.Display

// NewMulti drops nil displays.
func NewMulti(displays ...oauth.Display) Multi {
	m := make(Multi, 0, len(displays))
	for _, d := range displays {
		if d != nil {
			m = append(m, d)
		}
	}
	return m
}

func (m Multi) ReportStatus(message string) {
	for _, d := range m {
		d.ReportStatus(message)
	}
}

func (m Multi) ReportTokens(accessToken, tokenType, refreshToken string) {
	for _, d := range m {
		d.ReportTokens(accessToken, tokenType, refreshToken)
	}
}
