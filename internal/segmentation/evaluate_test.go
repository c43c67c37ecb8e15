package segmentation

import (
	"testing"
	"time"
)

func decodeObject(t *testing.T, doc string) map[string]any {
	t.Helper()
	obj, err := DecodeObject([]byte(doc))
	if err != nil {
		t.Fatalf("DecodeObject(%s) error = %v, want nil", doc, err)
	}
	return obj
}

func installationData(t *testing.T, installation string) *Data {
	t.Helper()
	return &Data{Installation: decodeObject(t, installation)}
}

func evaluate(t *testing.T, segment string, data *Data) bool {
	t.Helper()
	c, err := parseWith(t, DefaultGrammar(), InstallationSource(), segment)
	if err != nil {
		t.Fatalf("Parse(%s) error = %v, want nil", segment, err)
	}
	return NewEvaluator(data, WithEvaluatorClock(fixedClock)).Matches(c)
}

// matrix lists installations that must and must not match one segment.
type matrix struct {
	segment     string
	matching    []string
	nonMatching []string
}

func runMatrices(t *testing.T, matrices []matrix) {
	t.Helper()
	for _, m := range matrices {
		t.Run(m.segment, func(t *testing.T) {
			for _, installation := range m.matching {
				if !evaluate(t, m.segment, installationData(t, installation)) {
					t.Errorf("Matches(%s) = false, want true", installation)
				}
			}
			for _, installation := range m.nonMatching {
				if evaluate(t, m.segment, installationData(t, installation)) {
					t.Errorf("Matches(%s) = true, want false", installation)
				}
			}
		})
	}
}

func TestEvaluate_Boolean(t *testing.T) {
	runMatrices(t, []matrix{
		{`{}`, []string{`{}`, `{"a":1}`}, nil},
		{`{"and":[]}`, []string{`{}`}, nil},
		{`{"or":[]}`, nil, []string{`{}`}},
		{`{"or":[{".a":{"eq":1}},{".b":{"eq":2}}]}`,
			[]string{`{"a":1}`, `{"b":2}`, `{"a":1,"b":2}`},
			[]string{`{}`, `{"a":0,"b":0}`}},
		{`{"and":[{".a":{"eq":1}},{".b":{"eq":2}}]}`,
			[]string{`{"a":1,"b":2}`},
			[]string{`{}`, `{"a":1}`, `{"b":2}`}},
		{`{".a":{"eq":1},".b":{"eq":2}}`,
			[]string{`{"a":1,"b":2}`},
			[]string{`{"a":1}`, `{"b":2}`}},
		{`{"not":{".a":{"eq":1}}}`,
			[]string{`{}`, `{"a":2}`},
			[]string{`{"a":1}`}},
	})
}

func TestEvaluate_Eq(t *testing.T) {
	runMatrices(t, []matrix{
		{`{".foo":{"eq":1}}`,
			[]string{`{"foo":1}`, `{"foo":1.0}`, `{"foo":[0,1]}`},
			[]string{`{}`, `{"foo":null}`, `{"foo":"1"}`, `{"foo":true}`, `{"foo":2}`, `{"foo":{"bar":1}}`}},
		{`{".foo":{"eq":null}}`,
			[]string{`{}`, `{"foo":null}`, `{"foo":[]}`, `{"foo":[null]}`},
			[]string{`{"foo":0}`, `{"foo":""}`, `{"foo":false}`, `{"foo":[null,1]}`}},
		{`{".foo":{"eq":"bar"}}`,
			[]string{`{"foo":"bar"}`, `{"foo":["baz","bar"]}`},
			[]string{`{"foo":"BAR"}`, `{"foo":"barbar"}`}},
		{`{".foo":{"eq":false}}`,
			[]string{`{"foo":false}`},
			[]string{`{}`, `{"foo":0}`, `{"foo":true}`}},
		{`{".foo":{"eq":9223372036854775806}}`,
			[]string{`{"foo":9223372036854775806}`},
			[]string{`{"foo":9223372036854775807}`}},
		{`{".foo":{"eq":1.5}}`,
			[]string{`{"foo":1.5}`},
			[]string{`{"foo":1}`, `{"foo":2}`}},
		{`{".foo.bar":{"eq":1}}`,
			[]string{`{"foo":{"bar":1}}`},
			[]string{`{"foo":1}`, `{"foo":[{"bar":1}]}`}},
		{`{".list.1":{"eq":"b"}}`,
			[]string{`{"list":["a","b"]}`},
			[]string{`{"list":["b"]}`, `{"list":{"0":"b"}}`}},
		{`{".list.x":{"eq":null}}`,
			[]string{`{"list":["a","b"]}`},
			nil},
	})
}

func TestEvaluate_Any(t *testing.T) {
	runMatrices(t, []matrix{
		{`{".foo":{"any":[1]}}`,
			[]string{`{"foo":1}`, `{"foo":["bar",false,1]}`, `{"foo":["bar",false,1,"foo"]}`},
			[]string{`{}`, `{"foo":"bar"}`, `{"foo":"foo"}`, `{"foo":false}`, `{"foo":0}`, `{"foo":["bar",false]}`, `{"foo":["bar",false,"foo"]}`}},
		{`{".foo":{"any":[1,"foo"]}}`,
			[]string{`{"foo":1}`, `{"foo":"foo"}`, `{"foo":["bar",false,1]}`, `{"foo":["bar",false,"foo"]}`, `{"foo":["bar",false,1,"foo"]}`},
			[]string{`{}`, `{"foo":null}`, `{"foo":"bar"}`, `{"foo":false}`, `{"foo":0}`, `{"foo":["bar",false]}`}},
		{`{".foo":{"any":[1,null]}}`,
			[]string{`{}`, `{"foo":null}`, `{"foo":[]}`, `{"foo":1}`, `{"foo":["bar",false,1]}`},
			[]string{`{"foo":"bar"}`, `{"foo":false}`, `{"foo":0}`, `{"foo":["bar",false]}`}},
		{`{".foo":{"any":[null]}}`,
			[]string{`{}`, `{"foo":null}`, `{"foo":[]}`, `{"foo":[null]}`},
			[]string{`{"foo":1}`, `{"foo":"bar"}`, `{"foo":[null,1]}`}},
		{`{".foo":{"any":[]}}`,
			nil,
			[]string{`{}`, `{"foo":1}`}},
	})
}

func TestEvaluate_All(t *testing.T) {
	runMatrices(t, []matrix{
		{`{".foo":{"all":[]}}`,
			[]string{`{}`, `{"foo":"bar"}`},
			nil},
		{`{".foo":{"all":[1]}}`,
			[]string{`{"foo":1}`, `{"foo":["bar",false,1]}`, `{"foo":["bar",false,1,"foo"]}`},
			[]string{`{}`, `{"foo":"bar"}`, `{"foo":false}`, `{"foo":0}`, `{"foo":["bar",false]}`}},
		{`{".foo":{"all":[1,"foo"]}}`,
			[]string{`{"foo":["bar",false,1,"foo"]}`},
			[]string{`{}`, `{"foo":1}`, `{"foo":"foo"}`, `{"foo":["bar",false,1]}`, `{"foo":["bar",false,"foo"]}`}},
		{`{".foo":{"all":[1,null]}}`,
			nil,
			[]string{`{}`, `{"foo":null}`, `{"foo":[]}`, `{"foo":1}`, `{"foo":["bar",false,1]}`}},
		{`{".foo":{"all":[null]}}`,
			[]string{`{}`, `{"foo":null}`, `{"foo":[]}`},
			[]string{`{"foo":1}`, `{"foo":"bar"}`}},
	})
}

func TestEvaluate_Comparison(t *testing.T) {
	runMatrices(t, []matrix{
		{`{".foo":{"gt":1}}`,
			[]string{`{"foo":2}`, `{"foo":1.5}`, `{"foo":[0,2]}`},
			[]string{`{}`, `{"foo":null}`, `{"foo":1}`, `{"foo":0}`, `{"foo":"2"}`, `{"foo":true}`}},
		{`{".foo":{"gte":1}}`,
			[]string{`{"foo":1}`, `{"foo":1.0}`, `{"foo":2}`},
			[]string{`{"foo":0.5}`}},
		{`{".foo":{"lt":1}}`,
			[]string{`{"foo":0}`, `{"foo":-1.5}`},
			[]string{`{"foo":1}`, `{"foo":"0"}`, `{"foo":false}`}},
		{`{".foo":{"lte":1}}`,
			[]string{`{"foo":1}`, `{"foo":0}`},
			[]string{`{"foo":2}`}},
		{`{".foo":{"gt":9223372036854775806}}`,
			[]string{`{"foo":9223372036854775807}`},
			[]string{`{"foo":9223372036854775806}`}},
		{`{".foo":{"lt":"mm"}}`,
			[]string{`{"foo":"MM"}`, `{"foo":"ma"}`, `{"foo":""}`},
			[]string{`{"foo":"mm"}`, `{"foo":"zz"}`, `{"foo":1}`}},
		{`{".foo":{"lt":true}}`,
			[]string{`{"foo":false}`},
			[]string{`{"foo":true}`, `{"foo":0}`}},
		{`{".foo":{"gt":false}}`,
			[]string{`{"foo":true}`},
			[]string{`{"foo":false}`}},
		{`{".foo":{"gt":null}}`,
			[]string{`{"foo":1}`, `{"foo":"a"}`, `{"foo":true}`},
			[]string{`{}`, `{"foo":0}`, `{"foo":""}`, `{"foo":false}`, `{"foo":-1}`}},
		{`{".foo":{"lte":null}}`,
			[]string{`{"foo":0}`, `{"foo":-1}`, `{"foo":""}`, `{"foo":false}`},
			[]string{`{}`, `{"foo":1}`}},
		{`{".foo":{"gt":{"futureType":1}}}`,
			nil,
			[]string{`{}`, `{"foo":1}`}},
	})
}

func TestEvaluate_Prefix(t *testing.T) {
	runMatrices(t, []matrix{
		{`{".foo":{"prefix":"fo"}}`,
			[]string{`{"foo":"foo"}`, `{"foo":"fo"}`, `{"foo":[1,"fox"]}`},
			[]string{`{}`, `{"foo":"f"}`, `{"foo":"FOO"}`, `{"foo":"bar"}`, `{"foo":0}`}},
		{`{".foo":{"prefix":""}}`,
			[]string{`{"foo":"anything"}`, `{"foo":""}`},
			[]string{`{}`, `{"foo":1}`}},
	})
}

func TestEvaluate_Inside(t *testing.T) {
	runMatrices(t, []matrix{
		{`{".loc":{"inside":{"geocircle":{"radius":10000,"center":{"lat":48.86,"lon":2.34}}}}}`,
			[]string{`{"loc":{"lat":48.85,"lon":2.35}}`},
			[]string{`{}`, `{"loc":{"lat":45.76,"lon":4.83}}`, `{"loc":"paris"}`, `{"loc":48.85}`}},
		{`{".loc":{"inside":{"geobox":{"top":49,"right":3,"bottom":48,"left":2}}}}`,
			[]string{`{"loc":{"lat":48.85,"lon":2.35}}`, `{"loc":[{"lat":0,"lon":0},{"lat":48.5,"lon":2.5}]}`},
			[]string{`{"loc":{"lat":50,"lon":2.5}}`, `{"loc":{"lat":48.5}}`}},
		{`{".loc":{"inside":{"geopolygon":[{"lat":0,"lon":0},{"lat":0,"lon":10},{"lat":10,"lon":0}]}}}`,
			[]string{`{"loc":{"lat":2,"lon":2}}`},
			[]string{`{"loc":{"lat":8,"lon":8}}`}},
	})
}

func TestEvaluate_CustomDates(t *testing.T) {
	runMatrices(t, []matrix{
		{`{".custom.date_foo":{"gt":{"date":"2019"}}}`,
			[]string{`{"custom":{"date_foo":"2020-01-01"}}`, `{"custom":{"date_foo":1577836800000}}`, `{"custom":{"date_foo":["2018","2021-06-01T12:00Z"]}}`},
			[]string{`{}`, `{"custom":{"date_foo":"2018-12-31T23:59:59.999Z"}}`, `{"custom":{"date_foo":"soon"}}`}},
		{`{".custom.date_foo":{"eq":{"date":"2020-01-01T01:00:00+01:00"}}}`,
			[]string{`{"custom":{"date_foo":"2020-01-01"}}`, `{"custom":{"date_foo":"2020-01-01T00:00:00.000Z"}}`},
			[]string{`{"custom":{"date_foo":"2020-01-02"}}`}},
		{`{".custom.string_foo":{"gt":{"date":"2019"}}}`,
			nil,
			[]string{`{"custom":{"string_foo":"2020-01-01"}}`}},
	})
}

func TestEvaluate_SubscriptionStatus(t *testing.T) {
	tests := []struct {
		installation string
		want         SubscriptionStatus
	}{
		{`{}`, OptOut},
		{`{"pushToken":{}}`, OptOut},
		{`{"pushToken":{"data":1}}`, OptOut},
		{`{"preferences":{"subscriptionStatus":"optIn"}}`, OptOut},
		{`{"pushToken":{"data":"token"}}`, OptIn},
		{`{"pushToken":{"data":"token"},"preferences":{"subscriptionStatus":"optIn"}}`, OptIn},
		{`{"pushToken":{"data":"token"},"preferences":{"subscriptionStatus":"optOut"}}`, SoftOptOut},
	}

	for _, tt := range tests {
		t.Run(tt.installation, func(t *testing.T) {
			data := installationData(t, tt.installation)
			for _, status := range []SubscriptionStatus{OptIn, OptOut, SoftOptOut} {
				segment := `{"subscriptionStatus":"` + string(status) + `"}`
				if got, want := evaluate(t, segment, data), status == tt.want; got != want {
					t.Errorf("Matches(%s) = %v, want %v", segment, got, want)
				}
			}
		})
	}
}

func TestEvaluate_LastActivityDate(t *testing.T) {
	tests := []struct {
		segment         string
		lastAppOpenDate int64
		want            bool
	}{
		{`{"lastActivityDate":{"gt":1000000000000}}`, 0, false},
		{`{"lastActivityDate":{"gt":1000000000000}}`, 999999999999, false},
		{`{"lastActivityDate":{"gt":1000000000000}}`, 1000000000000, false},
		{`{"lastActivityDate":{"gt":1000000000000}}`, 1000000000001, true},
		{`{"lastActivityDate":{"gt":{"date":"-PT1M"}}}`, fixedNow.UnixMilli(), true},
		{`{"lastActivityDate":{"gt":{"date":"-PT1M"}}}`, fixedNow.Add(-2 * time.Minute).UnixMilli(), false},
		{`{"lastActivityDate":{}}`, 0, false},
		{`{"lastActivityDate":{}}`, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.segment, func(t *testing.T) {
			data := &Data{Installation: map[string]any{}, LastAppOpenDate: tt.lastAppOpenDate}
			if got := evaluate(t, tt.segment, data); got != tt.want {
				t.Errorf("Matches(lastAppOpenDate=%d) = %v, want %v", tt.lastAppOpenDate, got, tt.want)
			}
		})
	}
}

func TestEvaluate_Presence(t *testing.T) {
	now := fixedNow.UnixMilli()
	present := &PresenceInfo{FromDate: now - 2000, UntilDate: now + 1000, ElapsedTime: 3000}
	recent := &PresenceInfo{FromDate: now - 500, UntilDate: now + 1000, ElapsedTime: 1500}
	gone := &PresenceInfo{FromDate: now - 3000, UntilDate: now - 500, ElapsedTime: 2500}

	tests := []struct {
		name     string
		segment  string
		presence *PresenceInfo
		want     bool
	}{
		{"absent without info", `{"presence":{"present":false}}`, nil, false},
		{"present without info", `{"presence":{"present":true}}`, nil, true},
		{"present within window", `{"presence":{"present":true}}`, present, true},
		{"absent within window", `{"presence":{"present":false}}`, present, false},
		{"absent after window", `{"presence":{"present":false}}`, gone, true},
		{"present after window", `{"presence":{"present":true}}`, gone, false},
		{"elapsed time long enough", `{"presence":{"present":true,"elapsedTime":{"gt":{"duration":"1s"}}}}`, present, true},
		{"elapsed time too short", `{"presence":{"present":true,"elapsedTime":{"gt":{"duration":"1s"}}}}`, recent, false},
		{"elapsed time without info", `{"presence":{"present":true,"elapsedTime":{"lt":1}}}`, nil, true},
		{"since date early enough", `{"presence":{"present":true,"sinceDate":{"lte":{"date":"-PT1S"}}}}`, present, true},
		{"since date too recent", `{"presence":{"present":true,"sinceDate":{"lte":{"date":"-PT1S"}}}}`, recent, false},
		{"since date without info is now", `{"presence":{"present":true,"sinceDate":{"gte":{"date":"-PT1S"}}}}`, nil, true},
		{"absent since until date", `{"presence":{"present":false,"sinceDate":{"gte":{"date":"-PT1S"}}}}`, gone, true},
		{"absent elapsed time is recorded", `{"presence":{"present":false,"elapsedTime":{"gt":2000}}}`, gone, true},
		{"absent elapsed time too short", `{"presence":{"present":false,"elapsedTime":{"gt":3000}}}`, gone, false},
		{"both sub-criteria", `{"presence":{"present":true,"sinceDate":{"lte":{"date":"-PT1S"}},"elapsedTime":{"gte":2000}}}`, present, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := &Data{Installation: map[string]any{}, Presence: tt.presence}
			if got := evaluate(t, tt.segment, data); got != tt.want {
				t.Errorf("Matches(%s) = %v, want %v", tt.segment, got, tt.want)
			}
		})
	}
}

func TestEvaluate_Joins(t *testing.T) {
	testEvent := map[string]any{"type": "test"}
	otherEvent := map[string]any{"type": "other"}

	tests := []struct {
		name    string
		segment string
		data    *Data
		want    bool
	}{
		{"installation re-root", `{".bar":{".sub":{"eq":"sub"},"installation":{".foo":{"eq":"foo"}}}}`,
			&Data{Installation: map[string]any{"foo": "foo", "bar": map[string]any{"sub": "sub"}}}, true},
		{"installation re-root missing sub", `{".bar":{".sub":{"eq":"sub"},"installation":{".foo":{"eq":"foo"}}}}`,
			&Data{Installation: map[string]any{"foo": "foo"}}, false},
		{"installation re-root missing foo", `{".bar":{".sub":{"eq":"sub"},"installation":{".foo":{"eq":"foo"}}}}`,
			&Data{Installation: map[string]any{"bar": map[string]any{"sub": "sub"}}}, false},
		{"event and installation", `{"event":{".type":{"eq":"test"},"installation":{".foo":{"eq":"foo"}}}}`,
			&Data{Installation: map[string]any{"foo": "foo"}, Events: []map[string]any{otherEvent, testEvent}}, true},
		{"event without installation match", `{"event":{".type":{"eq":"test"},"installation":{".foo":{"eq":"foo"}}}}`,
			&Data{Installation: map[string]any{}, Events: []map[string]any{testEvent}}, false},
		{"event not tracked", `{"event":{".type":{"eq":"test"},"installation":{".foo":{"eq":"foo"}}}}`,
			&Data{Installation: map[string]any{"foo": "foo"}, Events: []map[string]any{otherEvent}}, false},
		{"no events", `{"event":{".type":{"eq":"test"}}}`, EmptyData(), false},
		{"no events for match all", `{"event":{}}`, EmptyData(), false},
		{"any event", `{"event":{}}`, &Data{Installation: map[string]any{}, Events: []map[string]any{otherEvent}}, true},
		{"same event for both fields", `{"event":{".type":{"eq":"test"},".value":{"eq":1}}}`,
			&Data{Installation: map[string]any{}, Events: []map[string]any{
				{"type": "test", "value": int64(2)},
				{"type": "other", "value": int64(1)},
			}}, false},
		{"unknown user", `{"user":{}}`, EmptyData(), false},
		{"known user", `{"user":{}}`, &Data{Installation: map[string]any{}, User: map[string]any{}}, true},
		{"user field", `{"user":{".name":{"eq":"Ann"}}}`,
			&Data{Installation: map[string]any{}, User: map[string]any{"name": "Ann"}}, true},
		{"user field mismatch", `{"user":{".name":{"eq":"Ann"}}}`,
			&Data{Installation: map[string]any{"name": "Ann"}, User: map[string]any{"name": "Bob"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := evaluate(t, tt.segment, tt.data); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluate_OtherRoots(t *testing.T) {
	data := &Data{
		Installation: map[string]any{"foo": "foo"},
		Events:       []map[string]any{{"type": "purchase"}},
		User:         map[string]any{"plan": "pro"},
	}

	tests := []struct {
		name    string
		root    *DataSource
		segment string
		event   map[string]any
		want    bool
	}{
		{"event root reads bound event", EventSource(), `{".type":{"eq":"open"}}`, map[string]any{"type": "open"}, true},
		{"event root without event", EventSource(), `{".type":{"eq":"open"}}`, nil, false},
		{"event root hops to installation", EventSource(), `{"installation":{".foo":{"eq":"foo"}}}`, nil, true},
		{"event root hops to user", EventSource(), `{"user":{".plan":{"eq":"pro"}}}`, nil, true},
		{"user root reads user", UserSource(), `{".plan":{"eq":"pro"}}`, nil, true},
		{"user root hops to events", UserSource(), `{"event":{".type":{"eq":"purchase"}}}`, nil, true},
		{"user root hops to missing event", UserSource(), `{"event":{".type":{"eq":"refund"}}}`, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := parseWith(t, StrictGrammar(), tt.root, tt.segment)
			if err != nil {
				t.Fatalf("Parse() error = %v, want nil", err)
			}
			e := NewEvaluator(data, WithEvaluatorClock(fixedClock))
			if tt.event != nil {
				e = e.ForEvent(tt.event)
			}
			if got := e.Matches(c); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluate_Unknown(t *testing.T) {
	runMatrices(t, []matrix{
		{`{"futureCriterion":{}}`, nil, []string{`{}`, `{"a":1}`}},
		{`{"not":{"futureCriterion":{}}}`, []string{`{}`}, nil},
		{`{".foo":{"eq":{"futureType":1}}}`, nil, []string{`{}`, `{"foo":1}`}},
		{`{".foo":{"any":[{"futureType":1}]}}`, nil, []string{`{}`, `{"foo":1}`}},
		{`{".foo":{"all":[{"futureType":1}]}}`, nil, []string{`{}`, `{"foo":1}`}},
		{`{"geo":{}}`, nil, []string{`{}`}},
	})
}

func TestEvaluate_NilData(t *testing.T) {
	c := mustParse(t, `{".foo":{"eq":null}}`)
	if !NewEvaluator(nil).Matches(c) {
		t.Errorf("Matches(nil data) = false, want true")
	}
}
