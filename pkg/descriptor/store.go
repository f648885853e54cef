package descriptor

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// entry is the on-disk shape of one descriptor.
type entry struct {
	Version  string `yaml:"version"`
	Download string `yaml:"download"`
	SHA512   string `yaml:"download-sha512,omitempty"`
	Hash     string `yaml:"download-hash,omitempty"`
	Format   string `yaml:"download-format"`
}

// Load reads the descriptor file at path and returns the descriptor for
// target. It has no side effects.
func Load(path, target string) (*Descriptor, error) {
	all, err := LoadAll(path)
	if err != nil {
		return nil, err
	}
	return pick(path, all, target)
}

// LoadSigned reads the descriptor file at path once, checks the detached
// signature at sigPath over those bytes against the armored keyring at
// keyringPath, and returns the descriptor for target parsed from the same
// bytes.
func LoadSigned(path, sigPath, keyringPath, target string) (*Descriptor, error) {
	data, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := verifySignature(path, data, sigPath, keyringPath); err != nil {
		return nil, err
	}
	all, err := parse(path, data)
	if err != nil {
		return nil, err
	}
	return pick(path, all, target)
}

// LoadAll reads and validates every descriptor in the file at path.
func LoadAll(path string) (map[string]*Descriptor, error) {
	data, err := read(path)
	if err != nil {
		return nil, err
	}
	return parse(path, data)
}

func read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Error("descriptor_read_failed", "path", path, "error", err)
		return nil, &ParseError{Path: path, Err: err}
	}
	return data, nil
}

func parse(path string, data []byte) (map[string]*Descriptor, error) {
	all, err := Parse(data)
	if err != nil {
		slog.Error("descriptor_parse_failed", "path", path, "error", err)
		return nil, &ParseError{Path: path, Err: err}
	}
	return all, nil
}

func pick(path string, all map[string]*Descriptor, target string) (*Descriptor, error) {
	desc, ok := all[target]
	if !ok {
		slog.Error("descriptor_target_unsupported", "path", path, "target", target, "available", Targets(all))
		return nil, &UnsupportedTargetError{Target: target}
	}

	slog.Info("descriptor_loaded", "path", path, "target", target, "version", desc.Version, "format", desc.Format)
	return desc, nil
}

// Parse decodes a descriptor document. Unknown keys are rejected.
func Parse(data []byte) (map[string]*Descriptor, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var raw map[string]entry
	if err := dec.Decode(&raw); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("descriptor file is empty")
		}
		return nil, err
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("descriptor file declares no targets")
	}

	out := make(map[string]*Descriptor, len(raw))
	for target, e := range raw {
		if target == "" || strings.ContainsAny(target, " \t\r\n") {
			return nil, fmt.Errorf("invalid target identifier %q", target)
		}
		desc, err := e.toDescriptor()
		if err != nil {
			return nil, fmt.Errorf("target %s: %w", target, err)
		}
		out[target] = desc
	}
	return out, nil
}

func (e entry) toDescriptor() (*Descriptor, error) {
	if e.Version == "" {
		return nil, fmt.Errorf("version is required")
	}
	// The identity marker is whitespace separated.
	if strings.ContainsAny(e.Version, " \t\r\n") {
		return nil, fmt.Errorf("version %q must not contain whitespace", e.Version)
	}
	if e.Download == "" {
		return nil, fmt.Errorf("download is required")
	}

	hash := e.SHA512
	switch {
	case hash != "" && e.Hash != "":
		return nil, fmt.Errorf("only one of download-sha512 and download-hash may be set")
	case hash == "":
		hash = e.Hash
	}
	if hash == "" {
		return nil, fmt.Errorf("download-sha512 is required")
	}
	digest, err := ParseDigest(hash)
	if err != nil {
		return nil, fmt.Errorf("download-sha512: %w", err)
	}

	format, err := ParseFormat(e.Format)
	if err != nil {
		return nil, err
	}

	return &Descriptor{
		Version:      e.Version,
		DownloadURL:  e.Download,
		DownloadHash: digest,
		Format:       format,
	}, nil
}

// Marshal serializes a descriptor set back into the file format.
func Marshal(all map[string]*Descriptor) ([]byte, error) {
	raw := make(map[string]entry, len(all))
	for target, d := range all {
		raw[target] = entry{
			Version:  d.Version,
			Download: d.DownloadURL,
			SHA512:   d.DownloadHash.String(),
			Format:   d.Format.String(),
		}
	}
	return yaml.Marshal(raw)
}

// Targets returns the sorted target identifiers of a descriptor set.
func Targets(all map[string]*Descriptor) []string {
	targets := make([]string, 0, len(all))
	for t := range all {
		targets = append(targets, t)
	}
	sort.Strings(targets)
	return targets
}
