package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/smartcall/gateway/internal/metrics"
)

const defaultSpeechBaseURL = "https://speech.googleapis.com/v1"

// Defaults matching what browsers deliver from MediaRecorder.
const (
	DefaultEncoding   = "WEBM_OPUS"
	DefaultSampleRate = 48000
	DefaultLanguage   = "ja-JP"
)

// RecognizeConfig controls one batch recognition request. Zero fields take
// the defaults above. Diarization is always requested with exactly two
// speakers, customer and operator.
type RecognizeConfig struct {
	Encoding     string `json:"encoding,omitempty"`
	SampleRate   int    `json:"sampleRateHertz,omitempty"`
	LanguageCode string `json:"languageCode,omitempty"`
}

// WordInfo is one recognized word with timing and its diarization speaker tag.
type WordInfo struct {
	Word       string `json:"word"`
	StartTime  string `json:"startTime,omitempty"`
	EndTime    string `json:"endTime,omitempty"`
	SpeakerTag int    `json:"speakerTag,omitempty"`
}

// Transcript is the best alternative of one recognition result.
type Transcript struct {
	Text       string     `json:"transcript"`
	Confidence float64    `json:"confidence"`
	Words      []WordInfo `json:"words,omitempty"`
}

// SpeechClient calls the Google Speech-to-Text batch recognize endpoint.
type SpeechClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewSpeechClient creates a speech client. baseURL is overridable for tests.
func NewSpeechClient(apiKey, baseURL string, poolSize int) *SpeechClient {
	if baseURL == "" {
		baseURL = defaultSpeechBaseURL
	}
	return &SpeechClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  NewPooledHTTPClient(poolSize, 60*time.Second),
	}
}

// Configured reports whether the client has an API key.
func (c *SpeechClient) Configured() bool {
	return c.apiKey != ""
}

type speechRecognizeRequest struct {
	Config speechConfig `json:"config"`
	Audio  speechAudio  `json:"audio"`
}

type speechConfig struct {
	Encoding                   string             `json:"encoding"`
	SampleRateHertz            int                `json:"sampleRateHertz"`
	LanguageCode               string             `json:"languageCode"`
	EnableAutomaticPunctuation bool               `json:"enableAutomaticPunctuation"`
	DiarizationConfig          *diarizationConfig `json:"diarizationConfig,omitempty"`
	Model                      string             `json:"model,omitempty"`
	UseEnhanced                bool               `json:"useEnhanced,omitempty"`
}

type diarizationConfig struct {
	EnableSpeakerDiarization bool `json:"enableSpeakerDiarization"`
	MinSpeakerCount          int  `json:"minSpeakerCount"`
	MaxSpeakerCount          int  `json:"maxSpeakerCount"`
}

type speechAudio struct {
	Content string `json:"content"`
}

type speechRecognizeResponse struct {
	Results []struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
			Words      []struct {
				Word       string `json:"word"`
				StartTime  string `json:"startTime"`
				EndTime    string `json:"endTime"`
				SpeakerTag int    `json:"speakerTag"`
			} `json:"words"`
		} `json:"alternatives"`
	} `json:"results"`
}

// Recognize transcribes one audio chunk and returns the best alternative of
// each recognition result in order.
func (c *SpeechClient) Recognize(ctx context.Context, audio []byte, cfg RecognizeConfig) ([]Transcript, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	start := time.Now()

	if cfg.Encoding == "" {
		cfg.Encoding = DefaultEncoding
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = DefaultLanguage
	}

	reqBody := speechRecognizeRequest{
		Config: speechConfig{
			Encoding:                   cfg.Encoding,
			SampleRateHertz:            cfg.SampleRate,
			LanguageCode:               cfg.LanguageCode,
			EnableAutomaticPunctuation: true,
			DiarizationConfig: &diarizationConfig{
				EnableSpeakerDiarization: true,
				MinSpeakerCount:          2,
				MaxSpeakerCount:          2,
			},
			Model:       "latest_long",
			UseEnhanced: true,
		},
		Audio: speechAudio{Content: base64.StdEncoding.EncodeToString(audio)},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal recognize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/speech:recognize", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create recognize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.Errors.WithLabelValues("speech", "http").Inc()
		return nil, fmt.Errorf("recognize request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.Errors.WithLabelValues("speech", "status").Inc()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("recognize status %d: %s", resp.StatusCode, errBody)
	}

	var out speechRecognizeResponse
	if err = json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode recognize response: %w", err)
	}

	metrics.TranscribeDuration.Observe(time.Since(start).Seconds())

	transcripts := make([]Transcript, 0, len(out.Results))
	for _, res := range out.Results {
		if len(res.Alternatives) == 0 {
			continue
		}
		alt := res.Alternatives[0]
		t := Transcript{Text: alt.Transcript, Confidence: alt.Confidence}
		for _, w := range alt.Words {
			t.Words = append(t.Words, WordInfo{
				Word:       w.Word,
				StartTime:  w.StartTime,
				EndTime:    w.EndTime,
				SpeakerTag: w.SpeakerTag,
			})
		}
		transcripts = append(transcripts, t)
	}
	return transcripts, nil
}
