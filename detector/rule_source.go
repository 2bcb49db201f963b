package detector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// Rule document formats.
const (
	FormatYAML = "yaml"
	FormatTOML = "toml"
)

const (
	configMapScheme     = "configmap://"
	defaultConfigMapKey = "rules.yaml"
)

var (
	ErrUnsupportedRuleFormat = errors.New("unsupported rule document format")
	ErrRuleKeyMissing        = errors.New("rule key missing from ConfigMap")
)

// RuleDocument is the on-disk shape of a rule set.
type RuleDocument struct {
	Rules []RuleSpec `yaml:"rules" toml:"rules"`
}

// ClientsetFactory lazily provides a Kubernetes client for ConfigMap sources.
type ClientsetFactory func() (kubernetes.Interface, error)

// ParseRuleDocument decodes a rule document. JSON documents are accepted as YAML.
// Individual records are not validated here; that happens in RuleTable.Build
// so that one bad record only disables itself.
func ParseRuleDocument(data []byte, format string) ([]RuleSpec, error) {
	var doc RuleDocument
	switch format {
	case FormatYAML, "yml", "json":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decoding yaml rules: %w", err)
		}
	case FormatTOML:
		md, err := toml.Decode(string(data), &doc)
		if err != nil {
			return nil, fmt.Errorf("decoding toml rules: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("decoding toml rules: unknown keys %v", undecoded)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedRuleFormat, format)
	}
	return doc.Rules, nil
}

// FormatForPath infers the document format from a file name.
func FormatForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML
	case ".json":
		return "json"
	case ".yaml", ".yml":
		return FormatYAML
	}
	return ""
}

// LoadRuleSpecs reads a rule document from disk.
func LoadRuleSpecs(path string) ([]RuleSpec, error) {
	format := FormatForPath(path)
	if format == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedRuleFormat, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules: %w", err)
	}
	return ParseRuleDocument(data, format)
}

// LoadRuleSpecsFromConfigMap reads a rule document stored under key in a ConfigMap.
func LoadRuleSpecsFromConfigMap(ctx context.Context, client kubernetes.Interface, namespace, name, key string) ([]RuleSpec, error) {
	if key == "" {
		key = defaultConfigMapKey
	}
	cm, err := client.CoreV1().ConfigMaps(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get ConfigMap %s/%s: %w", namespace, name, err)
	}
	data, ok := cm.Data[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s[%s]", ErrRuleKeyMissing, namespace, name, key)
	}
	format := FormatForPath(key)
	if format == "" {
		format = FormatYAML
	}
	return ParseRuleDocument([]byte(data), format)
}

// ParseConfigMapSource splits "configmap://namespace/name#key".
func ParseConfigMapSource(source string) (namespace, name, key string, ok bool) {
	rest, found := strings.CutPrefix(source, configMapScheme)
	if !found {
		return "", "", "", false
	}
	rest, key, _ = strings.Cut(rest, "#")
	namespace, name, found = strings.Cut(rest, "/")
	if !found || namespace == "" || name == "" {
		return "", "", "", false
	}
	return namespace, name, key, true
}

// LoadRuleSource resolves a rule source string: empty or ReferenceSource for
// the embedded rules, configmap://ns/name#key for a ConfigMap, anything else
// is a file path.
func LoadRuleSource(ctx context.Context, source string, clients ClientsetFactory) ([]RuleSpec, error) {
	switch {
	case source == "" || source == ReferenceSource:
		return ReferenceRuleSpecs(), nil
	case strings.HasPrefix(source, configMapScheme):
		namespace, name, key, ok := ParseConfigMapSource(source)
		if !ok {
			return nil, fmt.Errorf("malformed ConfigMap rule source %q", source)
		}
		if clients == nil {
			return nil, fmt.Errorf("no Kubernetes client available for %q", source)
		}
		client, err := clients()
		if err != nil {
			return nil, fmt.Errorf("could not create clientset: %w", err)
		}
		return LoadRuleSpecsFromConfigMap(ctx, client, namespace, name, key)
	default:
		return LoadRuleSpecs(source)
	}
}
