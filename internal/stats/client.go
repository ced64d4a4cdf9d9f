package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/valyala/fasthttp"
)

const (
	mojangProfileURL = "https://api.mojang.com/users/profiles/minecraft/"
	hypixelPlayerURL = "https://api.hypixel.net/v2/player?uuid="
	hypixelGuildURL  = "https://api.hypixel.net/v2/guild?player="
)

// Client talks to the Mojang and Hypixel HTTP APIs.
type Client struct {
	apiKey string
	http   *fasthttp.Client

	defaultTimeout time.Duration
}

type ClientOption func(*Client)

func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.defaultTimeout = d }
}

func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		apiKey:         apiKey,
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 16},
		defaultTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type mojangProfile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (c *Client) Resolve(ctx context.Context, name string) (*Identity, error) {
	var p mojangProfile
	status, err := c.getJSON(ctx, mojangProfileURL+url.PathEscape(name), false, &p)
	if err != nil {
		return nil, err
	}
	if status == fasthttp.StatusNotFound || status == fasthttp.StatusNoContent || p.ID == "" {
		return nil, ErrNotFound
	}
	if status != fasthttp.StatusOK {
		return nil, fmt.Errorf("mojang api: status=%d", status)
	}
	return &Identity{ID: p.ID, Username: p.Name}, nil
}

type playerResponse struct {
	Success bool `json:"success"`
	Player  *struct {
		MonthlyPackageRank string `json:"monthlyPackageRank"`
		PackageRank        string `json:"packageRank"`
		NewPackageRank     string `json:"newPackageRank"`
		Stats              struct {
			Bedwars *struct {
				Experience  float64        `json:"Experience"`
				FinalKills  int            `json:"final_kills_bedwars"`
				FinalDeaths int            `json:"final_deaths_bedwars"`
				Slumber     map[string]any `json:"slumber"`
			} `json:"Bedwars"`
		} `json:"stats"`
	} `json:"player"`
}

func (c *Client) FetchPlayer(ctx context.Context, id string) (*Player, error) {
	var resp playerResponse
	status, err := c.getJSON(ctx, hypixelPlayerURL+url.QueryEscape(id), true, &resp)
	if err != nil {
		return nil, err
	}
	if status != fasthttp.StatusOK {
		return nil, fmt.Errorf("hypixel api: status=%d", status)
	}
	if !resp.Success || resp.Player == nil {
		return nil, ErrNoStats
	}
	bw := resp.Player.Stats.Bedwars
	if bw == nil {
		return nil, ErrNoStats
	}

	slumber := make(map[string]int)
	for k, v := range bw.Slumber {
		if n, ok := v.(float64); ok {
			slumber[k] = int(n)
		}
	}
	return &Player{
		MonthlyPackageRank: resp.Player.MonthlyPackageRank,
		PackageRank:        resp.Player.PackageRank,
		NewPackageRank:     resp.Player.NewPackageRank,
		Bedwars: &Bedwars{
			Experience:  bw.Experience,
			FinalKills:  bw.FinalKills,
			FinalDeaths: bw.FinalDeaths,
			Slumber:     slumber,
		},
	}, nil
}

type guildResponse struct {
	Success bool `json:"success"`
	Guild   *struct {
		Name string `json:"name"`
	} `json:"guild"`
}

// FetchGuild returns the player's guild name, or "" when unaffiliated.
func (c *Client) FetchGuild(ctx context.Context, id string) (string, error) {
	var resp guildResponse
	status, err := c.getJSON(ctx, hypixelGuildURL+url.QueryEscape(id), true, &resp)
	if err != nil {
		return "", err
	}
	if status != fasthttp.StatusOK {
		return "", fmt.Errorf("hypixel api: status=%d", status)
	}
	if !resp.Success || resp.Guild == nil {
		return "", nil
	}
	return resp.Guild.Name, nil
}

func (c *Client) getJSON(ctx context.Context, uri string, withKey bool, out any) (int, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodGet)
	req.SetRequestURI(uri)
	if withKey {
		req.Header.Set("API-Key", c.apiKey)
	}

	if err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx)); err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}

	status := resp.StatusCode()
	if status >= 200 && status < 300 && len(resp.Body()) > 0 {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return status, fmt.Errorf("decode response: %w", err)
		}
	}
	return status, nil
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}
