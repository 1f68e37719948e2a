package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/cogents/memu-go/core"
)

const clustersFile = "clusters.yaml"

// clusterDoc is the on-disk shape of a category's cluster file.
type clusterDoc struct {
	Clusters []*core.Cluster `yaml:"clusters"`
}

// Clusters returns the named clusters of a category, label-sorted.
// A missing cluster file is an empty result: clusters are derived data.
func (s *Store) Clusters(ctx context.Context, category core.Category) ([]*core.Cluster, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l := s.lockFor(category, clustersFile)
	l.Lock()
	defer l.Unlock()
	return s.readClusters(category)
}

// ExtendCluster creates the labelled cluster if absent and merges the
// member IDs into it. Membership is a set: re-adding is a no-op.
func (s *Store) ExtendCluster(ctx context.Context, category core.Category, label string, members []string) (*core.Cluster, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l := s.lockFor(category, clustersFile)
	l.Lock()
	defer l.Unlock()

	clusters, err := s.readClusters(category)
	if err != nil {
		return nil, err
	}

	var target *core.Cluster
	for _, c := range clusters {
		if c.Label == label {
			target = c
			break
		}
	}
	if target == nil {
		target = &core.Cluster{Label: label, Category: category}
		clusters = append(clusters, target)
	}
	for _, m := range members {
		if !target.Has(m) {
			target.Members = append(target.Members, m)
		}
	}
	sort.Strings(target.Members)

	if err := s.writeClusters(category, clusters); err != nil {
		return nil, err
	}
	cp := *target
	cp.Members = append([]string(nil), target.Members...)
	return &cp, nil
}

func (s *Store) readClusters(category core.Category) ([]*core.Cluster, error) {
	path := filepath.Join(s.dir, string(category), clustersFile)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read clusters: %w", err)
	}
	var doc clusterDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal clusters: %w", err)
	}
	return doc.Clusters, nil
}

func (s *Store) writeClusters(category core.Category, clusters []*core.Cluster) error {
	sort.Slice(clusters, func(i, j int) bool { return clusters[i].Label < clusters[j].Label })
	data, err := yaml.Marshal(&clusterDoc{Clusters: clusters})
	if err != nil {
		return fmt.Errorf("marshal clusters: %w", err)
	}
	dir := filepath.Join(s.dir, string(category))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create category dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, clustersFile), data, 0o644); err != nil {
		return fmt.Errorf("write clusters: %w", err)
	}
	return nil
}

// Stats summarizes store contents per category.
type Stats struct {
	Total      int
	Tombstoned int
	ByCategory map[core.Category]int
}

// Stat counts records across all categories.
func (s *Store) Stat(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByCategory: make(map[core.Category]int)}
	for _, category := range core.Categories() {
		records, err := s.List(ctx, category)
		if err != nil {
			return nil, err
		}
		stats.ByCategory[category] = len(records)
		stats.Total += len(records)
		for _, rec := range records {
			if rec.Tombstone {
				stats.Tombstoned++
			}
		}
	}
	return stats, nil
}
