package importers

import (
	"errors"
	"strings"
	"testing"
)

// --- DetectFormat tests ---

func TestDetectFormat_FitCoachJSON(t *testing.T) {
	data := []byte(`{"version": "1.0", "plans": []}`)
	got := DetectFormat(data)
	if got != FormatFitCoachJSON {
		t.Errorf("DetectFormat(json) = %q, want %q", got, FormatFitCoachJSON)
	}
}

func TestDetectFormat_FitCoachJSON_BOM(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("\n  {\"version\": \"1.0\"}")...)
	got := DetectFormat(data)
	if got != FormatFitCoachJSON {
		t.Errorf("DetectFormat(json+BOM) = %q, want %q", got, FormatFitCoachJSON)
	}
}

func TestDetectFormat_LogCSV(t *testing.T) {
	data := []byte("Date,Label,Item,Calories,Protein,Recorded At\r\n2026-10-19,Lunch,Wrap,500,30,\r\n")
	got := DetectFormat(data)
	if got != FormatLogCSV {
		t.Errorf("DetectFormat(csv) = %q, want %q", got, FormatLogCSV)
	}
}

func TestDetectFormat_Unknown(t *testing.T) {
	data := []byte("some random text\n")
	got := DetectFormat(data)
	if got != "" {
		t.Errorf("DetectFormat(unknown) = %q, want empty", got)
	}
}

func TestParse_DispatchesOnFormat(t *testing.T) {
	pf, err := Parse([]byte("Date,Label,Item\n2026-10-19,Lunch,Wrap\n"))
	if err != nil || pf.Format != FormatLogCSV {
		t.Errorf("Parse(csv) = %+v, %v", pf, err)
	}
	pf, err = Parse([]byte(`{"version": "1.0"}`))
	if err != nil || pf.Format != FormatFitCoachJSON {
		t.Errorf("Parse(json) = %+v, %v", pf, err)
	}
	if _, err := Parse([]byte("hello")); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("Parse(unknown) err = %v, want ErrUnknownFormat", err)
	}
}

// --- Log CSV parser tests ---

func TestParseLogCSV_Basic(t *testing.T) {
	csv := `Date,Label,Item,Calories,Protein,Recorded At
2026-10-19,Breakfast,Eggs,300,25,2026-10-19T08:00:00Z
2026-10-19,Lunch,"Wrap, chicken",500.5,30,
2026-10-20,Monday,Goblet Squat,,,
2026-10-19,Breakfast,Eggs,300,25,
`
	pf, err := ParseLogCSV(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("ParseLogCSV: %v", err)
	}
	if pf.Format != FormatLogCSV {
		t.Errorf("format = %q, want %q", pf.Format, FormatLogCSV)
	}
	if len(pf.DailyLogs) != 2 {
		t.Fatalf("days = %d, want 2", len(pf.DailyLogs))
	}

	day := pf.DailyLogs[0]
	if day.Date != "2026-10-19" || len(day.Items) != 2 {
		t.Fatalf("first day = %+v, want 2026-10-19 with 2 items (duplicate dropped)", day)
	}
	if day.Items[1].Name != "Wrap, chicken" || day.Items[1].Calories != 500.5 {
		t.Errorf("second item = %+v", day.Items[1])
	}
	if day.Items[0].RecordedAt != "2026-10-19T08:00:00Z" {
		t.Errorf("recorded at = %q", day.Items[0].RecordedAt)
	}
	if got := pf.DailyLogs[1].Items[0]; got.Label != "Monday" || got.Calories != 0 {
		t.Errorf("workout item = %+v", got)
	}
}

func TestParseLogCSV_ColumnOrderAndBOM(t *testing.T) {
	csv := "\ufeffItem,Date,Label\nOats,2026-10-19,Breakfast\n"
	pf, err := ParseLogCSV(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("ParseLogCSV: %v", err)
	}
	if got := pf.DailyLogs[0].Items[0]; got.Name != "Oats" || got.Label != "Breakfast" {
		t.Errorf("item = %+v", got)
	}
}

func TestParseLogCSV_Errors(t *testing.T) {
	tests := []struct {
		name string
		csv  string
		want string
	}{
		{"no rows", "Date,Label,Item\n", "no data rows"},
		{"missing column", "Date,Item\n2026-10-19,Oats\n", `missing required column "Label"`},
		{"bad date", "Date,Label,Item\n19/10/2026,Breakfast,Oats\n", "line 2: invalid date"},
		{"blank item", "Date,Label,Item\n2026-10-19,Breakfast,\n", "label and item are required"},
		{"bad calories", "Date,Label,Item,Calories\n2026-10-19,Breakfast,Oats,lots\n", "calories: invalid number"},
		{"negative protein", "Date,Label,Item,Protein\n2026-10-19,Breakfast,Oats,-4\n", "protein: negative value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseLogCSV(strings.NewReader(tt.csv))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want containing %q", err, tt.want)
			}
		})
	}
}

// --- FitCoach JSON parser tests ---

func TestParseFitCoachJSON(t *testing.T) {
	data := `{
	  "version": "1.0",
	  "profile": {"age": 30, "weight_kg": 80, "height_cm": 180, "gender": "male", "goal": "strength"},
	  "plans": [
	    {"category": "workout", "title": "Base", "active": true, "created_at": "2026-10-01T08:00:00Z",
	     "content": {"days": [{"exercises": [{"name": "Squat"}]}]}}
	  ],
	  "daily_logs": [
	    {"date": "2026-10-19", "items": [{"label": "Lunch", "name": "Wrap", "calories": 500, "protein": 30}]}
	  ]
	}`
	pf, err := ParseFitCoachJSON(strings.NewReader(data))
	if err != nil {
		t.Fatalf("ParseFitCoachJSON: %v", err)
	}
	if pf.Format != FormatFitCoachJSON {
		t.Errorf("format = %q", pf.Format)
	}
	if pf.Profile == nil || pf.Profile.Goal != "strength" {
		t.Errorf("profile = %+v", pf.Profile)
	}
	if len(pf.Plans) != 1 || !pf.Plans[0].Active || !strings.Contains(string(pf.Plans[0].Content), "Squat") {
		t.Errorf("plans = %+v", pf.Plans)
	}
	if len(pf.DailyLogs) != 1 || pf.DailyLogs[0].Items[0].Calories != 500 {
		t.Errorf("daily logs = %+v", pf.DailyLogs)
	}
}

func TestParseFitCoachJSON_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"not json", "{", "decode fitcoach json"},
		{"no version", `{"plans": []}`, "missing version"},
		{"plan without content", `{"version": "1.0", "plans": [{"category": "workout", "title": "X"}]}`, "has no content"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFitCoachJSON(strings.NewReader(tt.data))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want containing %q", err, tt.want)
			}
		})
	}
}
