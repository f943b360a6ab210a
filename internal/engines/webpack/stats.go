package webpack

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Stats is the decoded stats.toJson() of a compilation
type Stats struct {
	Hash        string                     `json:"hash"`
	Time        int64                      `json:"time"`
	Errors      []StatsMessage             `json:"errors"`
	Warnings    []StatsMessage             `json:"warnings"`
	Assets      []StatsAsset               `json:"assets"`
	Chunks      []StatsChunk               `json:"chunks"`
	Entrypoints map[string]StatsEntrypoint `json:"entrypoints"`

	// Text is the human readable rendering produced by the engine, if any
	Text string `json:"-"`
}

// StatsMessage is an error or warning; older engines report plain strings
type StatsMessage struct {
	Message    string `json:"message"`
	ModuleName string `json:"moduleName"`
	Loc        string `json:"loc"`
	Details    string `json:"details"`
}

func (m *StatsMessage) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		m.Message = s
		return nil
	}
	type plain StatsMessage
	return json.Unmarshal(data, (*plain)(m))
}

func (m StatsMessage) String() string {
	if m.ModuleName == "" {
		return m.Message
	}
	if m.Loc == "" {
		return fmt.Sprintf("%s\n%s", m.ModuleName, m.Message)
	}
	return fmt.Sprintf("%s %s\n%s", m.ModuleName, m.Loc, m.Message)
}

// StatsAsset is an emitted file
type StatsAsset struct {
	Name       string   `json:"name"`
	Size       int64    `json:"size"`
	ChunkNames []string `json:"chunkNames"`
	Emitted    bool     `json:"emitted"`
}

// StatsChunk is a compiled chunk; ids are numbers or strings depending on configuration
type StatsChunk struct {
	ID      interface{} `json:"id"`
	Names   []string    `json:"names"`
	Files   []string    `json:"files"`
	Entry   bool        `json:"entry"`
	Initial bool        `json:"initial"`
	Size    int64       `json:"size"`
}

// StatsEntrypoint lists the assets loaded for an entry
type StatsEntrypoint struct {
	Name   string     `json:"name"`
	Assets []AssetRef `json:"assets"`
}

// AssetRef is an asset name, reported as a string or an object with a name
type AssetRef string

func (a *AssetRef) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*a = AssetRef(s)
		return nil
	}
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*a = AssetRef(obj.Name)
	return nil
}

// ParseStats decodes raw stats JSON
func ParseStats(raw []byte, text string) (*Stats, error) {
	stats := &Stats{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, stats); err != nil {
			return nil, fmt.Errorf("failed to decode webpack stats: %w", err)
		}
	}
	stats.Text = text
	return stats, nil
}

// HasErrors reports whether the compilation produced errors
func (s *Stats) HasErrors() bool {
	return len(s.Errors) > 0
}

// HasWarnings reports whether the compilation produced warnings
func (s *Stats) HasWarnings() bool {
	return len(s.Warnings) > 0
}

// EntryAssets maps each entry point to its first JavaScript asset
func (s *Stats) EntryAssets() map[string]string {
	out := make(map[string]string, len(s.Entrypoints))
	for name, ep := range s.Entrypoints {
		for _, a := range ep.Assets {
			if strings.HasSuffix(string(a), ".js") {
				out[name] = string(a)
				break
			}
		}
	}
	return out
}

// String renders the stats for a terminal
func (s *Stats) String() string {
	if s.Text != "" {
		return s.Text
	}

	var b strings.Builder
	if s.Hash != "" {
		fmt.Fprintf(&b, "Hash: %s\n", s.Hash)
	}
	fmt.Fprintf(&b, "Time: %dms\n", s.Time)

	assets := append([]StatsAsset(nil), s.Assets...)
	sort.Slice(assets, func(i, j int) bool { return assets[i].Name < assets[j].Name })
	for _, a := range assets {
		fmt.Fprintf(&b, "  %s  %d  [%s]\n", a.Name, a.Size, strings.Join(a.ChunkNames, ", "))
	}
	for _, w := range s.Warnings {
		fmt.Fprintf(&b, "\nWARNING in %s\n", w.String())
	}
	for _, e := range s.Errors {
		fmt.Fprintf(&b, "\nERROR in %s\n", e.String())
	}
	return strings.TrimRight(b.String(), "\n")
}
