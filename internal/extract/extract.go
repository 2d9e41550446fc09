// Package extract turns raw Steam payloads into structured records: the
// appdetails and appreviews JSON bodies plus the store page HTML.
package extract

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/mlefevre/steamharvest/internal/harvest"
)

// requirementKeys maps the labels found in requirement list items to
// stable record keys.
var requirementKeys = map[string]string{
	"OS":               "os",
	"Operating System": "os",
	"Processor":        "processor",
	"Memory":           "memory",
	"Graphics":         "graphics",
	"DirectX":          "directx",
	"Storage":          "storage",
	"Network":          "network",
	"Sound Card":       "sound_card",
	"Additional Notes": "additional_notes",
	"VR Support":       "vr_support",
}

// Extractor implements harvest.Extractor.
type Extractor struct {
	logger *zap.Logger
}

// New builds an Extractor.
func New(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{logger: logger}
}

type detailsEnvelope struct {
	Success bool        `json:"success"`
	Data    *appDetails `json:"data"`
}

type appDetails struct {
	Type                string          `json:"type"`
	Name                string          `json:"name"`
	HeaderImage         string          `json:"header_image"`
	ShortDescription    string          `json:"short_description"`
	DetailedDescription string          `json:"detailed_description"`
	IsFree              bool            `json:"is_free"`
	ReleaseDate         struct {
		Date string `json:"date"`
	} `json:"release_date"`
	Developers        []string        `json:"developers"`
	Publishers        []string        `json:"publishers"`
	Franchise         string          `json:"franchise"`
	Genres            []described     `json:"genres"`
	Categories        []described     `json:"categories"`
	Platforms         map[string]bool `json:"platforms"`
	PCRequirements    json.RawMessage `json:"pc_requirements"`
	MacRequirements   json.RawMessage `json:"mac_requirements"`
	LinuxRequirements json.RawMessage `json:"linux_requirements"`
	ControllerSupport string          `json:"controller_support"`
	SupportedLangs    string          `json:"supported_languages"`
	Metacritic        *struct {
		Score int `json:"score"`
	} `json:"metacritic"`
	Recommendations *struct {
		Total int `json:"total"`
	} `json:"recommendations"`
	PriceOverview *struct {
		Initial         int    `json:"initial"`
		Final           int    `json:"final"`
		DiscountPercent int    `json:"discount_percent"`
		Currency        string `json:"currency"`
	} `json:"price_overview"`
	DLC          []int64 `json:"dlc"`
	Achievements *struct {
		Total int `json:"total"`
	} `json:"achievements"`
}

type described struct {
	Description string `json:"description"`
}

// requirementBlock is the object form of a platform's requirements; the
// API returns an empty array instead when a platform has none.
type requirementBlock struct {
	Minimum     string `json:"minimum"`
	Recommended string `json:"recommended"`
}

type reviewsPayload struct {
	QuerySummary struct {
		TotalReviews  int `json:"total_reviews"`
		TotalPositive int `json:"total_positive"`
	} `json:"query_summary"`
}

// Extract builds a Record from the bundle. A details payload without
// data for the identifier yields (nil, nil): there is nothing to
// persist and the id stays remaining.
func (e *Extractor) Extract(id harvest.Identifier, bundle harvest.Bundle) (*harvest.Record, error) {
	var envelopes map[string]detailsEnvelope
	if err := json.Unmarshal(bundle.Details, &envelopes); err != nil {
		return nil, fmt.Errorf("decode appdetails for %d: %w", id, err)
	}
	env, ok := envelopes[strconv.FormatInt(int64(id), 10)]
	if !ok || env.Data == nil {
		e.logger.Warn("no detail data for app", zap.Int64("app_id", int64(id)))
		return nil, nil
	}
	data := env.Data

	var reviews reviewsPayload
	if err := json.Unmarshal(bundle.Reviews, &reviews); err != nil {
		e.logger.Debug("unreadable reviews payload", zap.Int64("app_id", int64(id)), zap.Error(err))
	}
	total := reviews.QuerySummary.TotalReviews
	positive := reviews.QuerySummary.TotalPositive
	positivePct := 0.0
	if total > 0 {
		positivePct = math.Round(float64(positive)/float64(total)*100*100) / 100
	}

	recordType := "game"
	if data.Type == "dlc" {
		recordType = "dlc"
	}

	rec := &harvest.Record{
		AppID:               id,
		Name:                data.Name,
		Image:               data.HeaderImage,
		Type:                recordType,
		ShortDescription:    stripHTML(data.ShortDescription),
		DetailedDescription: stripHTML(data.DetailedDescription),
		IsFree:              data.IsFree,
		ReleaseDate:         data.ReleaseDate.Date,
		Developers:          dedupe(data.Developers),
		Publishers:          dedupe(data.Publishers),
		Franchise:           data.Franchise,
		Genres:              dedupe(descriptions(data.Genres)),
		Categories:          dedupe(descriptions(data.Categories)),
		UserTags:            parseUserTags(bundle.StorePage),
		Platforms:           availablePlatforms(data.Platforms),
		Requirements:        e.parseRequirements(data),
		ControllerSupport:   data.ControllerSupport,
		Languages:           parseLanguages(data.SupportedLangs),
		Ratings: harvest.Ratings{
			UserReviews: harvest.UserReviews{
				TotalPositive: positive,
				Total:         total,
				PositivePct:   positivePct,
			},
		},
		Commercial: harvest.Commercial{Currency: "USD", DLC: data.DLC},
	}
	if data.Metacritic != nil {
		score := data.Metacritic.Score
		rec.Ratings.MetacriticScore = &score
	}
	if data.Recommendations != nil {
		totalRecs := data.Recommendations.Total
		rec.Ratings.RecommendationTotal = &totalRecs
	}
	if data.PriceOverview != nil {
		rec.Commercial.InitialPrice = data.PriceOverview.Initial
		rec.Commercial.FinalPrice = data.PriceOverview.Final
		rec.Commercial.DiscountPct = data.PriceOverview.DiscountPercent
		if data.PriceOverview.Currency != "" {
			rec.Commercial.Currency = data.PriceOverview.Currency
		}
	}
	if data.Achievements != nil {
		rec.Content.Achievements = data.Achievements.Total
	}
	return rec, nil
}

func (e *Extractor) parseRequirements(data *appDetails) map[string]harvest.PlatformRequirements {
	raw := map[string]json.RawMessage{
		"pc":    data.PCRequirements,
		"mac":   data.MacRequirements,
		"linux": data.LinuxRequirements,
	}
	out := make(map[string]harvest.PlatformRequirements)
	for platform, msg := range raw {
		if len(msg) == 0 {
			continue
		}
		var block requirementBlock
		if err := json.Unmarshal(msg, &block); err != nil {
			// Platforms without requirements come back as an empty
			// array, not an object.
			continue
		}
		reqs := harvest.PlatformRequirements{
			Minimum:     parseRequirementBlock(block.Minimum),
			Recommended: parseRequirementBlock(block.Recommended),
		}
		if len(reqs.Minimum) > 0 || len(reqs.Recommended) > 0 {
			out[platform] = reqs
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// parseRequirementBlock reads the <li><strong>Key:</strong> value</li>
// list the store embeds in requirement sections.
func parseRequirementBlock(htmlContent string) map[string]string {
	if htmlContent == "" {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return nil
	}
	parsed := make(map[string]string)
	doc.Find("li").Each(func(_ int, item *goquery.Selection) {
		strong := item.Find("strong").First()
		if strong.Length() == 0 {
			return
		}
		rawKey := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(strong.Text()), ":"))
		value := textAfter(strong)
		if value == "" {
			return
		}
		for label, key := range requirementKeys {
			if strings.Contains(rawKey, label) {
				parsed[key] = value
				break
			}
		}
	})
	if len(parsed) == 0 {
		return nil
	}
	return parsed
}

// textAfter collects the text nodes immediately following the selection.
func textAfter(sel *goquery.Selection) string {
	if len(sel.Nodes) == 0 {
		return ""
	}
	var b strings.Builder
	for n := sel.Nodes[0].NextSibling; n != nil; n = n.NextSibling {
		if n.Type != html.TextNode {
			break
		}
		b.WriteString(n.Data)
	}
	return strings.TrimSpace(b.String())
}

func parseUserTags(storePage []byte) []string {
	if len(storePage) == 0 {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(storePage)))
	if err != nil {
		return nil
	}
	var tags []string
	doc.Find("a.app_tag").Each(func(_ int, s *goquery.Selection) {
		if tag := strings.TrimSpace(s.Text()); tag != "" {
			tags = append(tags, tag)
		}
	})
	return tags
}

// parseLanguages splits the supported-languages string: names marked
// with an asterisk carry full audio support, the footnote after the
// first <br> is discarded.
func parseLanguages(s string) harvest.LanguageSupport {
	support := harvest.LanguageSupport{FullAudio: []string{}, Partial: []string{}}
	if s == "" {
		return support
	}
	head, _, _ := strings.Cut(s, "<br>")
	for _, lang := range strings.Split(stripHTML(head), ",") {
		lang = strings.TrimSpace(lang)
		if lang == "" {
			continue
		}
		if strings.Contains(lang, "*") {
			support.FullAudio = append(support.FullAudio, strings.TrimSpace(strings.ReplaceAll(lang, "*", "")))
		} else {
			support.Partial = append(support.Partial, lang)
		}
	}
	return support
}

// stripHTML reduces an HTML fragment to its text content.
func stripHTML(s string) string {
	if s == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	return strings.TrimSpace(doc.Text())
}

func descriptions(items []described) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item.Description != "" {
			out = append(out, item.Description)
		}
	}
	return out
}

func dedupe(items []string) []string {
	if len(items) == 0 {
		return []string{}
	}
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}

func availablePlatforms(platforms map[string]bool) []string {
	var out []string
	for _, name := range []string{"windows", "mac", "linux"} {
		if platforms[name] {
			out = append(out, name)
		}
	}
	if out == nil {
		return []string{}
	}
	return out
}
