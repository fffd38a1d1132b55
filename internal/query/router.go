// Package query narrows a device snapshot to the fields a request needs and
// renders them into a provider payload.
package query

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"insightd/internal/device"
	"insightd/internal/provider"
)

// Topic is a subject a prompt can be about.
type Topic string

const (
	TopicBattery Topic = "battery"
	TopicMemory  Topic = "memory"
	TopicStorage Topic = "storage"
	TopicCPU     Topic = "cpu"
	TopicNetwork Topic = "network"
	TopicProcess Topic = "process"
)

type topicDef struct {
	topic    Topic
	keywords []string
	prefixes []string
}

// topicTable is ordered; Topics reports matches in this order.
var topicTable = []topicDef{
	{TopicBattery, []string{"battery", "charge", "charging", "charger", "power", "drain", "energy", "unplugged"}, []string{"battery.", "power."}},
	{TopicMemory, []string{"memory", "ram", "swap"}, []string{"memory."}},
	{TopicStorage, []string{"storage", "disk", "space", "files"}, []string{"storage."}},
	{TopicCPU, []string{"cpu", "processor", "slow", "speed", "hot", "lag", "performance", "load"}, []string{"cpu."}},
	{TopicNetwork, []string{"network", "wifi", "internet", "connection", "online", "bandwidth", "signal"}, []string{"network."}},
	{TopicProcess, []string{"process", "processes", "app", "apps", "running", "tasks"}, []string{"process."}},
}

var keywordIndex = func() map[string]int {
	m := make(map[string]int)
	for i, d := range topicTable {
		for _, k := range d.keywords {
			m[k] = i
		}
	}
	return m
}()

func tokenize(prompt string) []string {
	return strings.FieldsFunc(strings.ToLower(prompt), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Topics returns the topics a prompt mentions, in table order.
func Topics(prompt string) []Topic {
	hit := make([]bool, len(topicTable))
	for _, tok := range tokenize(prompt) {
		if i, ok := keywordIndex[tok]; ok {
			hit[i] = true
		}
	}
	var out []Topic
	for i, ok := range hit {
		if ok {
			out = append(out, topicTable[i].topic)
		}
	}
	return out
}

// Prefixes returns the snapshot field prefixes owned by the given topics.
func Prefixes(topics ...Topic) []string {
	var out []string
	for _, t := range topics {
		for _, d := range topicTable {
			if d.topic == t {
				out = append(out, d.prefixes...)
			}
		}
	}
	return out
}

// Route returns the snapshot fields relevant to prompt. When no topic
// matches, or the matched topics have no data, the whole snapshot is
// returned so a backend always gets some context. Route has no side effects.
func Route(prompt string, snap device.Snapshot) map[string]any {
	topics := Topics(prompt)
	if len(topics) == 0 {
		return snap.Fields()
	}
	narrowed := snap.WithPrefixes(Prefixes(topics...)...)
	if len(narrowed) == 0 {
		return snap.Fields()
	}
	return narrowed
}

// FieldsFor returns the fixed field subset for a fixed operation. Query
// requests get the whole snapshot; use Route for those.
func FieldsFor(kind provider.RequestKind, snap device.Snapshot) map[string]any {
	switch kind {
	case provider.RequestBattery:
		return snap.WithPrefixes(Prefixes(TopicBattery)...)
	case provider.RequestPerformance:
		return snap.WithPrefixes(Prefixes(TopicMemory, TopicCPU, TopicStorage, TopicProcess)...)
	default:
		return snap.Fields()
	}
}

var systemPrompts = map[provider.RequestKind]string{
	provider.RequestInsights: "You are a device health assistant. Review the diagnostic readings and give " +
		"a short summary of the device's condition followed by concrete recommendations.",
	provider.RequestBattery: "You are a battery care assistant. Using the battery and power readings, " +
		"give practical advice to extend battery life and explain the current state.",
	provider.RequestPerformance: "You are a performance tuning assistant. Using the memory, CPU, storage " +
		"and process readings, suggest specific steps to make the device faster.",
	provider.RequestQuery: "You are a device assistant. Answer the user's question using only the " +
		"diagnostic readings provided. Say so if the readings do not cover it.",
}

var defaultPrompts = map[provider.RequestKind]string{
	provider.RequestInsights:    "Summarize the health of this device.",
	provider.RequestBattery:     "How can I improve my battery life?",
	provider.RequestPerformance: "How can I make this device run faster?",
}

// SystemPrompt returns the instruction text used for kind.
func SystemPrompt(kind provider.RequestKind) string {
	if s, ok := systemPrompts[kind]; ok {
		return s
	}
	return systemPrompts[provider.RequestQuery]
}

// Compose builds the payload for kind. An empty prompt on a fixed operation
// is replaced by that operation's default question.
func Compose(kind provider.RequestKind, prompt string, fields map[string]any) provider.Payload {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		prompt = defaultPrompts[kind]
	}
	var b strings.Builder
	b.WriteString("Device readings:\n")
	for _, k := range sortedKeys(fields) {
		fmt.Fprintf(&b, "- %s: %s\n", k, formatValue(fields[k]))
	}
	if prompt != "" {
		b.WriteString("\nQuestion: ")
		b.WriteString(prompt)
		b.WriteString("\n")
	}
	return provider.Payload{
		Kind:         kind,
		SystemPrompt: SystemPrompt(kind),
		Prompt:       prompt,
		Fields:       fields,
		Rendered:     b.String(),
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func formatValue(v any) string {
	switch x := v.(type) {
	case float64:
		return fmt.Sprintf("%g", x)
	case float32:
		return fmt.Sprintf("%g", x)
	case []string:
		if len(x) == 0 {
			return "none"
		}
		return strings.Join(x, ", ")
	case nil:
		return "unknown"
	default:
		return fmt.Sprint(x)
	}
}
