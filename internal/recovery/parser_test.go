package recovery_test

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"studyforge/internal/recovery"
	"studyforge/internal/services"
)

type card struct {
	Front string `json:"front"`
	Back  string `json:"back"`
}

func decodeCards(t *testing.T, res recovery.Result) []card {
	t.Helper()
	cards, _, err := recovery.Decode[card](res)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return cards
}

func TestParseDirect(t *testing.T) {
	raw := `[{"front":"a","back":"1"},{"front":"b","back":"2"}]`
	res, err := recovery.Parse(raw, recovery.Options{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if res.Method != recovery.MethodDirect || res.Warning != "" {
		t.Fatalf("expected clean direct parse, got %q warning %q", res.Method, res.Warning)
	}
	if got := decodeCards(t, res); len(got) != 2 || got[1].Front != "b" {
		t.Fatalf("unexpected cards: %#v", got)
	}
}

func TestParseStripsFencesAndProse(t *testing.T) {
	cases := map[string]string{
		"fenced":        "```json\n[{\"front\":\"a\",\"back\":\"1\"}]\n```",
		"bare fence":    "```\n[{\"front\":\"a\",\"back\":\"1\"}]\n```",
		"leading prose": "Here are your flashcards:\n[{\"front\":\"a\",\"back\":\"1\"}]",
		"trailing text": "[{\"front\":\"a\",\"back\":\"1\"}]\nLet me know if you need more.",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			res, err := recovery.Parse(raw, recovery.Options{})
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if res.Method != recovery.MethodDirect {
				t.Fatalf("expected direct parse after stripping, got %q", res.Method)
			}
			if got := decodeCards(t, res); len(got) != 1 || got[0].Front != "a" {
				t.Fatalf("unexpected cards: %#v", got)
			}
		})
	}
}

func TestParseNamedKey(t *testing.T) {
	raw := `{"topic":"x","tags":["a"],"flashcards":[{"front":"a","back":"1"}]}`
	res, err := recovery.Parse(raw, recovery.Options{Key: "flashcards"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := decodeCards(t, res); len(got) != 1 || got[0].Front != "a" {
		t.Fatalf("unexpected cards: %#v", got)
	}
}

func TestParseUnnamedWrapperPicksRecordArray(t *testing.T) {
	whole := `{"tags":["x"],"flashcards":[{"front":"a","back":"1"},{"front":"b","back":"2"}]}`
	truncated := `{"tags":["x"],"flashcards":[{"front":"a","back":"1"},{"front":"b","back":"2"},{"front":"c`
	for name, raw := range map[string]string{"whole": whole, "truncated": truncated} {
		t.Run(name, func(t *testing.T) {
			res, err := recovery.Parse(raw, recovery.Options{})
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			want := []card{{"a", "1"}, {"b", "2"}}
			if got := decodeCards(t, res); !reflect.DeepEqual(got, want) {
				t.Fatalf("unexpected cards: %#v", got)
			}
		})
	}
}

func TestWellFormedInputMatchesAcrossPaths(t *testing.T) {
	raw := `{"flashcards":[{"front":"a","back":"1"},{"front":"b \"quoted\"","back":"2"}]}`
	direct, err := recovery.Parse(raw, recovery.Options{Key: "flashcards"})
	if err != nil {
		t.Fatalf("direct Parse: %v", err)
	}
	// Same records with the wrapper left open forces the repair path.
	repaired, err := recovery.Parse(raw[:len(raw)-1], recovery.Options{Key: "flashcards"})
	if err != nil {
		t.Fatalf("repaired Parse: %v", err)
	}
	if !repaired.Recovered() {
		t.Fatalf("expected repair path, got %q", repaired.Method)
	}
	if !reflect.DeepEqual(decodeCards(t, direct), decodeCards(t, repaired)) {
		t.Fatal("expected identical records on direct and recovery paths")
	}
}

func TestParseTruncatedMidRecordDropsPartial(t *testing.T) {
	raw := `[{"front":"a","back":"1"},{"front":"b","back":"2"},{"front":"c","ba`
	res, err := recovery.Parse(raw, recovery.Options{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !res.Recovered() || res.Warning == "" {
		t.Fatalf("expected warning on recovered result, got %#v", res)
	}
	got := decodeCards(t, res)
	want := []card{{"a", "1"}, {"b", "2"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected cards: %#v", got)
	}
}

func TestParseTruncatedInsideStringValue(t *testing.T) {
	raw := "```json\n{\"flashcards\": [{\"front\":\"a\",\"back\":\"1\"}, {\"front\":\"half an ans"
	res, err := recovery.Parse(raw, recovery.Options{Key: "flashcards"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got := decodeCards(t, res)
	if len(got) != 1 || got[0].Front != "a" {
		t.Fatalf("expected only the closed record, got %#v", got)
	}
}

func TestParseDanglingComma(t *testing.T) {
	raw := `[{"front":"a","back":"1"},`
	res, err := recovery.Parse(raw, recovery.Options{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if res.Method != recovery.MethodBalanced {
		t.Fatalf("expected balanced parse, got %q", res.Method)
	}
	if got := decodeCards(t, res); len(got) != 1 {
		t.Fatalf("unexpected cards: %#v", got)
	}
}

func TestParseSalvagesAroundGarbage(t *testing.T) {
	raw := `[{"front":"a","back":"1"}, {"front":"b","back":"2"} oops {"front":"c"`
	res, err := recovery.Parse(raw, recovery.Options{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if res.Method != recovery.MethodSalvaged {
		t.Fatalf("expected salvage, got %q", res.Method)
	}
	if got := decodeCards(t, res); len(got) != 2 {
		t.Fatalf("expected two salvaged cards, got %#v", got)
	}
}

func TestParseEmptyPolicies(t *testing.T) {
	_, err := recovery.Parse("I could not produce flashcards.", recovery.Options{})
	if !errors.Is(err, recovery.ErrNoRecords) {
		t.Fatalf("expected ErrNoRecords, got %v", err)
	}
	if !errors.Is(err, services.ErrValidation) {
		t.Fatal("expected ErrNoRecords to be validation-class")
	}

	res, err := recovery.Parse(`{"concepts": [`, recovery.Options{Key: "concepts", Policy: recovery.AllowEmpty})
	if err != nil {
		t.Fatalf("AllowEmpty Parse: %v", err)
	}
	if res.Method != recovery.MethodEmpty || res.Records == nil || len(res.Records) != 0 {
		t.Fatalf("expected explicit empty result, got %#v", res)
	}
}

func TestDecodeSkipsInvalidRecords(t *testing.T) {
	res := recovery.Result{Records: []json.RawMessage{
		json.RawMessage(`{"front":"a","back":"1"}`),
		json.RawMessage(`{"front":7}`),
	}}
	cards, skipped, err := recovery.Decode[card](res)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(cards) != 1 || skipped != 1 {
		t.Fatalf("expected 1 card and 1 skipped, got %d/%d", len(cards), skipped)
	}
}

func TestCheckCompleteness(t *testing.T) {
	cases := []struct {
		got, requested int
		wantErr        bool
	}{
		{10, 10, false},
		{5, 10, false},
		{4, 10, true},
		{0, 1, true},
		{1, 3, true},
		{2, 3, false},
		{0, 0, false},
	}
	for _, tc := range cases {
		err := recovery.CheckCompleteness(tc.got, tc.requested)
		if (err != nil) != tc.wantErr {
			t.Fatalf("CheckCompleteness(%d, %d) err=%v wantErr=%v", tc.got, tc.requested, err, tc.wantErr)
		}
		if err != nil {
			if !recovery.IsIncomplete(err) || services.KindOf(err) != services.ErrorKindValidation {
				t.Fatalf("expected validation-class incomplete error, got %v", err)
			}
		}
	}
}
