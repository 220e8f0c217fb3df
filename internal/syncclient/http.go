package syncclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/pairplay/duet/internal/match"
)

var codeErrors = map[string]error{
	"match_not_found": match.ErrMatchNotFound,
	"match_completed": match.ErrMatchCompleted,
	"not_your_turn":   match.ErrNotYourTurn,
}

// HTTPFetcher reads match views from the API with a bearer token.
type HTTPFetcher struct {
	base   string
	token  string
	client *http.Client
}

func NewHTTPFetcher(base, token string, client *http.Client) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{base: strings.TrimRight(base, "/"), token: token, client: client}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, matchID string) (*match.View, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.base+"/api/matches/"+url.PathEscape(matchID), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+f.token)
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Error == "" {
			body.Error = http.StatusText(resp.StatusCode)
		}
		if sentinel, ok := codeErrors[body.Code]; ok {
			return nil, fmt.Errorf("%w: %s", sentinel, body.Error)
		}
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body.Error)
	}

	var v match.View
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return nil, fmt.Errorf("decoding match view: %w", err)
	}
	if v.Match == nil {
		return nil, fmt.Errorf("empty match view")
	}
	return &v, nil
}
