// Package config loads the metadata store's external-interface settings
// from an optional YAML file with every key overridable by an
// environment variable of the same dotted name, e.g.
// ELASTICSEARCH_CLUSTER_NAME overrides elasticsearch.cluster.name.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/szulijun/sfs/pkg/metastore"
)

// Config mirrors the external-interface key table, plus DataDir for this
// single-process implementation's on-disk state.
type Config struct {
	ElasticsearchClusterName string `yaml:"elasticsearch.cluster.name"`
	ElasticsearchNodeName    string `yaml:"elasticsearch.node.name"`

	ElasticsearchDiscoveryZenPingUnicastHosts     []string `yaml:"elasticsearch.discovery.zen.ping.unicast.hosts"`
	ElasticsearchDiscoveryZenPingMulticastEnabled bool     `yaml:"elasticsearch.discovery.zen.ping.multicast.enabled"`
	ElasticsearchDiscoveryZenPingUnicastEnabled   bool     `yaml:"elasticsearch.discovery.zen.ping.unicast.enabled"`

	ElasticsearchShards   int `yaml:"elasticsearch.shards"`
	ElasticsearchReplicas int `yaml:"elasticsearch.replicas"`

	ElasticsearchDefaultIndexTimeout  time.Duration `yaml:"elasticsearch.defaultindextimeout"`
	ElasticsearchDefaultGetTimeout    time.Duration `yaml:"elasticsearch.defaultgettimeout"`
	ElasticsearchDefaultSearchTimeout time.Duration `yaml:"elasticsearch.defaultsearchtimeout"`
	ElasticsearchDefaultDeleteTimeout time.Duration `yaml:"elasticsearch.defaultdeletetimeout"`
	ElasticsearchDefaultAdminTimeout  time.Duration `yaml:"elasticsearch.defaultadmintimeout"`
	ElasticsearchDefaultScrollTimeout time.Duration `yaml:"elasticsearch.defaultscrolltimeout"`

	DataDir string `yaml:"datadir"`
}

// defaults returns the spec §6 default values, before any file or
// environment override is applied.
func defaults() Config {
	return Config{
		ElasticsearchDiscoveryZenPingMulticastEnabled: true,
		ElasticsearchDiscoveryZenPingUnicastEnabled:   false,
		ElasticsearchShards:                           1,
		ElasticsearchReplicas:                         0,
		ElasticsearchDefaultIndexTimeout:              500 * time.Millisecond,
		ElasticsearchDefaultGetTimeout:                500 * time.Millisecond,
		ElasticsearchDefaultSearchTimeout:              5 * time.Second,
		ElasticsearchDefaultDeleteTimeout:             500 * time.Millisecond,
		ElasticsearchDefaultAdminTimeout:              30 * time.Second,
		ElasticsearchDefaultScrollTimeout:             2 * time.Minute,
		DataDir:                                       "./sfs-data",
	}
}

// Load reads path (if it exists; a missing file is not an error, the
// defaults apply) and then applies every environment override found,
// matching spec §6's "all overridable via environment with matching
// names" — dots become underscores and the whole key is upper-cased,
// e.g. elasticsearch.shards -> ELASTICSEARCH_SHARDS.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func envKey(dotted string) string {
	return strings.ToUpper(strings.ReplaceAll(dotted, ".", "_"))
}

func applyEnvOverrides(cfg *Config) {
	if v, ok := os.LookupEnv(envKey("elasticsearch.cluster.name")); ok {
		cfg.ElasticsearchClusterName = v
	}
	if v, ok := os.LookupEnv(envKey("elasticsearch.node.name")); ok {
		cfg.ElasticsearchNodeName = v
	}
	if v, ok := os.LookupEnv(envKey("elasticsearch.discovery.zen.ping.unicast.hosts")); ok {
		cfg.ElasticsearchDiscoveryZenPingUnicastHosts = splitHosts(v)
	}
	if v, ok := os.LookupEnv(envKey("elasticsearch.discovery.zen.ping.multicast.enabled")); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.ElasticsearchDiscoveryZenPingMulticastEnabled = b
		}
	}
	if v, ok := os.LookupEnv(envKey("elasticsearch.discovery.zen.ping.unicast.enabled")); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.ElasticsearchDiscoveryZenPingUnicastEnabled = b
		}
	}
	if v, ok := os.LookupEnv(envKey("elasticsearch.shards")); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ElasticsearchShards = n
		}
	}
	if v, ok := os.LookupEnv(envKey("elasticsearch.replicas")); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ElasticsearchReplicas = n
		}
	}
	overrideDuration(&cfg.ElasticsearchDefaultIndexTimeout, "elasticsearch.defaultindextimeout")
	overrideDuration(&cfg.ElasticsearchDefaultGetTimeout, "elasticsearch.defaultgettimeout")
	overrideDuration(&cfg.ElasticsearchDefaultSearchTimeout, "elasticsearch.defaultsearchtimeout")
	overrideDuration(&cfg.ElasticsearchDefaultDeleteTimeout, "elasticsearch.defaultdeletetimeout")
	overrideDuration(&cfg.ElasticsearchDefaultAdminTimeout, "elasticsearch.defaultadmintimeout")
	overrideDuration(&cfg.ElasticsearchDefaultScrollTimeout, "elasticsearch.defaultscrolltimeout")
	if v, ok := os.LookupEnv(envKey("datadir")); ok {
		cfg.DataDir = v
	}
}

func overrideDuration(dst *time.Duration, dotted string) {
	v, ok := os.LookupEnv(envKey(dotted))
	if !ok {
		return
	}
	if ms, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(ms) * time.Millisecond
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
	}
}

func splitHosts(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ToMetastoreConfig narrows Config to the subset pkg/metastore.Config
// needs to start a Store.
func (c Config) ToMetastoreConfig() metastore.Config {
	return metastore.Config{
		ClusterName:          c.ElasticsearchClusterName,
		NodeName:             c.ElasticsearchNodeName,
		UnicastHosts:         c.ElasticsearchDiscoveryZenPingUnicastHosts,
		MulticastEnabled:     c.ElasticsearchDiscoveryZenPingMulticastEnabled,
		UnicastEnabled:       c.ElasticsearchDiscoveryZenPingUnicastEnabled,
		Shards:               c.ElasticsearchShards,
		Replicas:             c.ElasticsearchReplicas,
		DefaultIndexTimeout:  c.ElasticsearchDefaultIndexTimeout,
		DefaultGetTimeout:    c.ElasticsearchDefaultGetTimeout,
		DefaultSearchTimeout: c.ElasticsearchDefaultSearchTimeout,
		DefaultDeleteTimeout: c.ElasticsearchDefaultDeleteTimeout,
		DefaultAdminTimeout:  c.ElasticsearchDefaultAdminTimeout,
		DefaultScrollTimeout: c.ElasticsearchDefaultScrollTimeout,
		DataDir:              c.DataDir,
	}
}
