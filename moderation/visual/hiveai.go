package visual

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/tipjar-social/contentcheck/moderation"
	"github.com/tipjar-social/contentcheck/util"

	"github.com/carlmjohnson/versioninfo"
	"golang.org/x/time/rate"
)

const DefaultHiveEndpoint = "https://api.thehive.ai/api/v2/task/sync"

// Image labeler backed by the Hive AI synchronous classification API. Hive fetches the artifact itself, from the URL.
type HiveAILabeler struct {
	Client   *http.Client
	ApiToken string
	Endpoint string
	// optional client-side limit on outbound API requests
	Limiter *rate.Limiter
	// "yes_*" classes at or above this score are passed through as descriptive labels
	DescriptiveThreshold float64
	Logger               *slog.Logger
}

var _ moderation.ImageLabeler = (*HiveAILabeler)(nil)

// schema: https://docs.thehive.ai/reference/classification
type HiveAIResp struct {
	Status []HiveAIResp_Status `json:"status"`
}

type HiveAIResp_Status struct {
	Response HiveAIResp_Response `json:"response"`
}

type HiveAIResp_Response struct {
	Output []HiveAIResp_Out `json:"output"`
}

type HiveAIResp_Out struct {
	Time    float64            `json:"time"`
	Classes []HiveAIResp_Class `json:"classes"`
}

type HiveAIResp_Class struct {
	Class string  `json:"class"`
	Score float64 `json:"score"`
}

func NewHiveAILabeler(token string) *HiveAILabeler {
	opts := util.DefaultClientOptions()
	opts.Service = "hiveai"
	// hive classification of a large image can be slow
	opts.Timeout = 45 * time.Second
	return &HiveAILabeler{
		Client:               util.NewHTTPClient(opts),
		ApiToken:             token,
		Endpoint:             DefaultHiveEndpoint,
		DescriptiveThreshold: 0.90,
		Logger:               slog.Default().With("labeler", "hiveai"),
	}
}

// Classes that map directly to a label once they reach a minimum score.
//
// hive gore and violence: https://docs.thehive.ai/docs/class-descriptions-violence-gore
var hiveDirectLabels = []struct {
	class string
	min   float64
	label string
}{
	{"very_bloody", 0.90, "gore"},
	{"human_corpse", 0.90, "corpse"},
	{"hanging", 0.90, "corpse"},
	{"yes_self_harm", 0.96, "self-harm"},
}

func summarizeSimpleLabels(cl []HiveAIResp_Class) []string {
	var labels []string
	for _, cls := range cl {
		for _, dl := range hiveDirectLabels {
			if cls.Class == dl.class && cls.Score >= dl.min {
				labels = append(labels, dl.label)
			}
		}
	}
	return labels
}

type classScores map[string]float64

func (cs classScores) anyAtLeast(threshold float64, classes ...string) bool {
	for _, c := range classes {
		if cs[c] >= threshold {
			return true
		}
	}
	return false
}

// At most one of, in decreasing severity: porn, sexual, nudity.
//
// porn: explicit activity or full-frontal nudity
// sexual: suggestive but not explicit, including most underwear images
// nudity: non-sexual nudity (eg, artistic)
//
// hive docs/definitions: https://docs.thehive.ai/docs/sexual-content
func summarizeSexualLabels(cl []HiveAIResp_Class) string {
	const threshold = 0.90
	scores := make(classScores, len(cl))
	for _, cls := range cl {
		scores[cls.Class] = cls.Score
	}

	switch {
	case scores.anyAtLeast(threshold, "yes_sexual_activity", "animal_genitalia_and_human", "yes_realistic_nsfw"):
		return "porn"
	case scores["general_nsfw"] >= threshold && scores["animated_animal_genitalia"] >= 0.5:
		return "porn"
	case scores["general_nsfw"] >= threshold && scores.anyAtLeast(threshold, "yes_undressed") && scores.anyAtLeast(threshold, "yes_sexual_activity"):
		return "porn"
	case scores.anyAtLeast(threshold, "yes_sexual_intent", "yes_sex_toy"):
		return "sexual"
	case scores["yes_undressed"] >= threshold && scores["yes_sex_toy"] > 0.75:
		return "sexual"
	case scores.anyAtLeast(threshold, "yes_male_nudity", "yes_female_nudity", "yes_undressed"):
		return "nudity"
	case scores.anyAtLeast(0.98, "yes_male_underwear", "yes_female_underwear"):
		return "sexual"
	}
	return ""
}

// Positive ("yes_*") classes at or above threshold, as plain words. For example, "yes_gun_in_hand" becomes "gun in hand".
func summarizeDescriptiveLabels(cl []HiveAIResp_Class, threshold float64) []string {
	var labels []string
	for _, cls := range cl {
		if !strings.HasPrefix(cls.Class, "yes_") || cls.Score < threshold {
			continue
		}
		labels = append(labels, strings.ReplaceAll(strings.TrimPrefix(cls.Class, "yes_"), "_", " "))
	}
	return labels
}

// Summarizes the full response in to a flat list of labels. May contain duplicates.
func (resp *HiveAIResp) SummarizeLabels(descriptiveThreshold float64) []string {
	labels := []string{}

	for _, status := range resp.Status {
		for _, out := range status.Response.Output {
			labels = append(labels, summarizeSimpleLabels(out.Classes)...)

			sexual := summarizeSexualLabels(out.Classes)
			if sexual != "" {
				labels = append(labels, sexual)
			}

			if descriptiveThreshold > 0 {
				labels = append(labels, summarizeDescriptiveLabels(out.Classes, descriptiveThreshold)...)
			}
		}
	}

	return labels
}

func (hal *HiveAILabeler) GetLabels(ctx context.Context, url string) moderation.ExtractionResult {
	labels, err := hal.LabelURL(ctx, url)
	if err != nil {
		hal.logger().Warn("hive-ai-label-failed", "url", url, "err", err)
		return moderation.ExtractionResult{Success: false}
	}
	return moderation.ExtractionResult{Success: true, Labels: labels}
}

func (hal *HiveAILabeler) logger() *slog.Logger {
	if hal.Logger != nil {
		return hal.Logger
	}
	return slog.Default()
}

// Submits the URL to Hive for classification and returns summarized labels. Errors on any transport, status, or parse failure.
func (hal *HiveAILabeler) LabelURL(ctx context.Context, url string) ([]string, error) {

	if hal.Limiter != nil {
		if err := hal.Limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting for HiveAI rate limit: %w", err)
		}
	}

	hal.logger().Debug("sending url to Hive AI", "url", url)

	// generic HTTP form submission, then parse the response JSON
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if err := writer.WriteField("url", url); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	endpoint := hal.Endpoint
	if endpoint == "" {
		endpoint = DefaultHiveEndpoint
	}
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, body)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		duration := time.Since(start)
		hiveAPIDuration.Observe(duration.Seconds())
	}()

	req.Header.Set("Authorization", fmt.Sprintf("Token %s", hal.ApiToken))
	req.Header.Add("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "contentcheck/"+versioninfo.Short())

	client := hal.Client
	if client == nil {
		client = http.DefaultClient
	}
	res, err := client.Do(req)
	if err != nil {
		hiveAPICount.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("HiveAI request failed: %w", err)
	}
	defer res.Body.Close()

	hiveAPICount.WithLabelValues(fmt.Sprint(res.StatusCode)).Inc()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HiveAI request failed: statusCode=%d", res.StatusCode)
	}

	respBytes, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read HiveAI resp body: %w", err)
	}

	var respObj HiveAIResp
	if err := json.Unmarshal(respBytes, &respObj); err != nil {
		return nil, fmt.Errorf("failed to parse HiveAI resp JSON: %w", err)
	}
	if len(respObj.Status) == 0 {
		return nil, fmt.Errorf("empty HiveAI response")
	}
	labels := respObj.SummarizeLabels(hal.DescriptiveThreshold)
	hal.logger().Info("hive-ai-response", "url", url, "labels", labels)
	return labels, nil
}
