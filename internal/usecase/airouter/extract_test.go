package airouter

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"talentscan/internal/domain"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"bare object", `{"a":1}`, `{"a":1}`},
		{"bare array", `[1,2,3]`, `[1,2,3]`},
		{"prose around", `Sure! Here you go: {"skills":["go"]} Hope that helps.`, `{"skills":["go"]}`},
		{"code fence", "```json\n{\"score\": 7}\n```", `{"score": 7}`},
		{"braces in strings", `{"note":"use } and { freely","n":1}`, `{"note":"use } and { freely","n":1}`},
		{"escaped quote", `{"q":"say \"hi\" }"}`, `{"q":"say \"hi\" }"}`},
		{"nested", `x {"a":{"b":[{"c":1}]}} y`, `{"a":{"b":[{"c":1}]}}`},
		{"skips invalid first span", `{not json} then {"ok":true}`, `{"ok":true}`},
		{"first of two", `{"a":1} {"b":2}`, `{"a":1}`},
		{"resumes after mismatch", `{"a": ]} {"b":2}`, `{"b":2}`},
		{"stray closers", `]} done: [1]`, `[1]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractJSONFailure(t *testing.T) {
	for _, text := range []string{"", "no json here", `{"unterminated": 1`, `]{`, `{x {"a":1}}`} {
		_, err := ExtractJSON(text)
		require.Error(t, err, text)
		assert.True(t, errors.Is(err, domain.ErrResponseParse), "got %v", err)

		var pe *domain.ResponseParseError
		assert.True(t, errors.As(err, &pe))
	}
}

func TestExtractJSONLargeUnbalancedReplyIsLinear(t *testing.T) {
	text := strings.Repeat(`{"`, 512<<10)

	start := time.Now()
	_, err := ExtractJSON(text)
	elapsed := time.Since(start)

	require.ErrorIs(t, err, domain.ErrResponseParse)
	assert.Less(t, elapsed, 2*time.Second, "1 MiB of unbalanced input took %s", elapsed)
}

func TestExtractJSONLargeReplyWithTrailingObject(t *testing.T) {
	text := strings.Repeat("{[", 256<<10) + "}" + ` then {"ok":true}`

	start := time.Now()
	got, err := ExtractJSON(text)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, got)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestExtractJSONFindsEmbeddedObject(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		payload := rapid.MapOf(
			rapid.StringMatching(`[a-z]{1,8}`),
			rapid.OneOf(
				rapid.String().AsAny(),
				rapid.IntRange(-1000, 1000).AsAny(),
				rapid.Bool().AsAny(),
			),
		).Draw(rt, "payload")

		raw, err := json.Marshal(payload)
		if err != nil {
			rt.Fatal(err)
		}
		noBrackets := rapid.StringMatching(`[^{}\[\]"]{0,40}`)
		text := noBrackets.Draw(rt, "prefix") + string(raw) + noBrackets.Draw(rt, "suffix")

		span, err := ExtractJSON(text)
		if err != nil {
			rt.Fatalf("ExtractJSON(%q): %v", text, err)
		}
		if span != string(raw) {
			rt.Fatalf("span = %q, want %q", span, raw)
		}
	})
}

type skillPayload struct {
	Skills []string `json:"skills"`
}

func TestGenerateJSONFallsBackOnUnparseableText(t *testing.T) {
	descs := standardSet()
	providers, fp := fakes(descs)
	fp["gemini"].fn = replyWith("I cannot help with that.")
	fp["groq"].fn = replyWith("Result:\n```json\n{\"skills\": [\"go\", \"sql\"]}\n```")

	r, err := New(descs, providers, WithLogger(discardLogger()))
	require.NoError(t, err)

	got, res, err := GenerateJSON[skillPayload](context.Background(), r, "extract", domain.TaskSkillExtraction)
	require.NoError(t, err)
	assert.Equal(t, []string{"go", "sql"}, got.Skills)
	assert.Equal(t, "groq", res.Provider)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, int64(0), r.Tracker().Count("gemini"), "rejected responses must not count")
	assert.Equal(t, int64(1), r.Tracker().Count("groq"))
}

func TestGenerateJSONAllUnparseable(t *testing.T) {
	descs := []domain.ProviderDescriptor{descriptor("groq", 1), descriptor("gemini", 2)}
	providers, fp := fakes(descs)
	fp["groq"].fn = replyWith("nope")
	fp["gemini"].fn = replyWith(`{"skills": "not-a-list"}`)

	r, err := New(descs, providers, WithLogger(discardLogger()))
	require.NoError(t, err)

	_, _, err = GenerateJSON[skillPayload](context.Background(), r, "extract", domain.TaskGeneral)
	require.Error(t, err)

	var all *domain.AllProvidersFailedError
	require.True(t, errors.As(err, &all))
	require.Len(t, all.Errors, 2)
	for _, pe := range all.Errors {
		var parseErr *domain.ResponseParseError
		require.True(t, errors.As(pe, &parseErr), "attempt error %v", pe)
		assert.Equal(t, pe.Provider, parseErr.Provider)
	}
	assert.True(t, strings.Contains(all.Errors[1].Error(), "decode"))
	assert.Equal(t, domain.CodeAllProvidersFailed, domain.ErrorCodeOf(err))
}

func TestGenerateJSONWithCheckRejects(t *testing.T) {
	descs := standardSet()
	providers, fp := fakes(descs)
	fp["gemini"].fn = replyWith(`{"skills": []}`)
	fp["groq"].fn = replyWith(`{"skills": ["go"]}`)

	r, err := New(descs, providers, WithLogger(discardLogger()))
	require.NoError(t, err)

	nonEmpty := func(span []byte) error {
		var p skillPayload
		if err := json.Unmarshal(span, &p); err != nil {
			return err
		}
		if len(p.Skills) == 0 {
			return errors.New("skills must not be empty")
		}
		return nil
	}
	got, res, err := GenerateJSONWith[skillPayload](context.Background(), r, "extract", domain.TaskSkillExtraction, nonEmpty)
	require.NoError(t, err)
	assert.Equal(t, []string{"go"}, got.Skills)
	assert.Equal(t, "groq", res.Provider)
	assert.Equal(t, 2, res.Attempts)
}

func TestGenerateJSONValidationBoundByAttemptTimeout(t *testing.T) {
	descs := []domain.ProviderDescriptor{descriptor("groq", 1), descriptor("gemini", 2)}
	descs[0].Timeout = 20 * time.Millisecond
	providers, fp := fakes(descs)
	fp["groq"].fn = replyWith(`{"skills": ["slow"]}`)
	fp["gemini"].fn = replyWith(`{"skills": ["go"]}`)

	r, err := New(descs, providers, WithLogger(discardLogger()), WithDefaultTimeout(time.Second))
	require.NoError(t, err)

	slowOnGroq := func(span []byte) error {
		if strings.Contains(string(span), "slow") {
			time.Sleep(60 * time.Millisecond)
		}
		return nil
	}
	got, res, err := GenerateJSONWith[skillPayload](context.Background(), r, "extract", domain.TaskGeneral, slowOnGroq)
	require.NoError(t, err)
	assert.Equal(t, "gemini", res.Provider)
	assert.Equal(t, []string{"go"}, got.Skills)
	assert.Zero(t, r.Tracker().Count("groq"), "an overdue attempt is not a success")
}
