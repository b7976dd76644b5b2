package client

import (
	"context"
	"encoding/json"
	"fmt"
)

// NamedRef is a genre/theme/demographic reference as the API emits it.
type NamedRef struct {
	MalID int    `json:"mal_id"`
	Name  string `json:"name"`
}

// Images holds the cover image URLs for a title.
type Images struct {
	JPG struct {
		ImageURL      string `json:"image_url"`
		LargeImageURL string `json:"large_image_url"`
	} `json:"jpg"`
}

// Aired is the broadcast window of a title.
type Aired struct {
	From *string `json:"from"`
	To   *string `json:"to"`
}

// Anime is one title entry from a season listing page.
type Anime struct {
	MalID        int        `json:"mal_id"`
	Title        string     `json:"title"`
	TitleEnglish *string    `json:"title_english"`
	Images       Images     `json:"images"`
	Type         string     `json:"type"`
	Status       string     `json:"status"`
	Members      int        `json:"members"`
	Score        *float64   `json:"score"`
	Aired        Aired      `json:"aired"`
	Genres       []NamedRef `json:"genres"`
	Themes       []NamedRef `json:"themes"`
	Demographics []NamedRef `json:"demographics"`
}

// CoverURL prefers the large cover image when present.
func (a *Anime) CoverURL() string {
	if a.Images.JPG.LargeImageURL != "" {
		return a.Images.JPG.LargeImageURL
	}
	return a.Images.JPG.ImageURL
}

// DisplayTitle prefers the English title when the API carries one.
func (a *Anime) DisplayTitle() string {
	if a.TitleEnglish != nil && *a.TitleEnglish != "" {
		return *a.TitleEnglish
	}
	return a.Title
}

// Pagination carries the next-page indicator from a listing response.
type Pagination struct {
	HasNextPage bool `json:"has_next_page"`
}

// SeasonPage is one page of a season listing.
type SeasonPage struct {
	Data       []Anime    `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// Episode is one aired installment from the episodes endpoint. The ordinal
// is carried in MalID; score and air-date are nullable upstream.
type Episode struct {
	MalID int      `json:"mal_id"`
	Title string   `json:"title"`
	Aired *string  `json:"aired"`
	Score *float64 `json:"score"`
}

type episodesResponse struct {
	Data []Episode `json:"data"`
}

// FetchSeasonPage fetches one page of the season's title listing.
func (c *Client) FetchSeasonPage(ctx context.Context, seasonName string, year, page int) (*SeasonPage, error) {
	path := fmt.Sprintf("seasons/%d/%s?page=%d", year, seasonName, page)

	body, err := c.get(ctx, "season_page", path)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch season page %d: %w", page, err)
	}

	var result SeasonPage
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal season page: %w", err)
	}

	return &result, nil
}

// FetchEpisodes fetches the episode list for a title.
func (c *Client) FetchEpisodes(ctx context.Context, animeID int) ([]Episode, error) {
	path := fmt.Sprintf("anime/%d/episodes", animeID)

	body, err := c.get(ctx, "episodes", path)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch episodes for anime %d: %w", animeID, err)
	}

	var result episodesResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal episodes: %w", err)
	}

	return result.Data, nil
}
