package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ContentGenerator produces a single short text for a prompt. Calls are
// fallible and slow; everything above the genGate treats them as such.
type ContentGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// generatorFunc adapts a plain function to ContentGenerator, mainly for tests.
type generatorFunc func(ctx context.Context, prompt string) (string, error)

func (f generatorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// genRequest describes what kind of prompt a round coordinator wants.
type genRequest struct {
	feature   string // "mind", "truth" or "daily"
	vibe      string // mind: requested vibe
	kind      string // truth: "truth" or "dare"
	intensity string // truth: "Chill", "Party" or "Wild"
}

func (r genRequest) prompt() string {
	switch r.feature {
	case "daily":
		return `Generate a single, short daily check-in question for a couple to answer once per day. Do not include any label. Just the text.`
	case "truth":
		kind := r.kind
		if kind != "dare" {
			kind = "truth"
		}
		intensity := r.intensity
		if intensity == "" {
			intensity = "Chill"
		}
		return fmt.Sprintf(`Generate a single, short %s challenge for a couple playing truth-or-dare together. The intensity is: %s. Do not include any label. Just the text.`, kind, intensity)
	default:
		vibe := r.vibe
		if vibe == "" {
			vibe = "fun"
		}
		return fmt.Sprintf(`Generate a single, short, engaging question for a couple to answer simultaneously. The vibe is: %s. Do not include "Question:" label. Just the text.`, vibe)
	}
}

// fallback is what clients get when the upstream call fails or times out.
// The user-facing contract is "always a prompt, never an error screen".
func (r genRequest) fallback() string {
	switch r.feature {
	case "daily":
		return "What was the best part of your day so far?"
	case "truth":
		if r.kind == "dare" {
			return "Dare: Recreate the very first photo you two ever took together."
		}
		return "Truth: What is one small thing your partner does that always makes your day?"
	default:
		return "What is the most adventurous thing we should do this year?"
	}
}

// genGate serializes prompt generation per room. A room is "busy" until an
// expiry timestamp; requests arriving inside the busy window are dropped,
// not queued, so a burst of duplicate clicks produces one upstream call.
// The clock is injected so the window is testable without real delays.
type genGate struct {
	mu        sync.Mutex
	busyUntil map[string]time.Time

	gen      ContentGenerator
	timeout  time.Duration
	cooldown time.Duration
	now      func() time.Time
}

func newGenGate(gen ContentGenerator, timeout, cooldown time.Duration) *genGate {
	if gen == nil {
		panic("genGate requires a ContentGenerator")
	}
	return &genGate{
		busyUntil: make(map[string]time.Time),
		gen:       gen,
		timeout:   timeout,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// generate returns the generated (or fallback) text and true, or "" and
// false when the request was dropped because the room is busy. The upstream
// call runs under a hard deadline; on any failure the feature-appropriate
// fallback is returned instead of an error.
func (g *genGate) generate(ctx context.Context, roomID string, req genRequest) (string, bool) {
	g.mu.Lock()
	now := g.now()
	// Expired windows are swept here so the map only ever tracks rooms
	// that are actually busy, not every room that ever generated.
	for id, until := range g.busyUntil {
		if !now.Before(until) {
			delete(g.busyUntil, id)
		}
	}
	if until, ok := g.busyUntil[roomID]; ok && now.Before(until) {
		g.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"room_id": roomID,
			"feature": req.feature,
		}).Debug("GEN: Duplicate generation request dropped (room busy)")
		return "", false
	}
	// Cover the in-flight call plus cooldown so a concurrent request cannot
	// slip in even if the call runs to its deadline.
	g.busyUntil[roomID] = now.Add(g.timeout + g.cooldown)
	g.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	text, err := g.gen.Generate(callCtx, req.prompt())

	g.mu.Lock()
	g.busyUntil[roomID] = g.now().Add(g.cooldown)
	g.mu.Unlock()

	text = strings.TrimSpace(text)
	if err != nil || text == "" {
		logrus.WithFields(logrus.Fields{
			"room_id": roomID,
			"feature": req.feature,
		}).WithError(err).Warn("GEN: Generation failed, using fallback")
		return req.fallback(), true
	}

	return text, true
}

// geminiGenerator calls a Generative Language style REST endpoint:
// POST {base}/v1beta/models/{model}:generateContent?key={key}.
type geminiGenerator struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

func newGeminiGenerator(cfg *Config) *geminiGenerator {
	return &geminiGenerator{
		baseURL: strings.TrimSuffix(cfg.generatorURL, "/"),
		apiKey:  cfg.generatorKey,
		model:   cfg.generatorModel,
		client:  &http.Client{},
	}
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func (g *geminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
	})
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", g.baseURL, g.model, g.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("generator: unexpected status %d", resp.StatusCode)
	}

	var decoded geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("generator: malformed response: %w", err)
	}
	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("generator: empty response")
	}

	return decoded.Candidates[0].Content.Parts[0].Text, nil
}
