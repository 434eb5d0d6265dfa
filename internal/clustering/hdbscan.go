// Package clustering groups articles into issue candidates by embedding
// similarity. Batch clustering uses HDBSCAN with cosine distance;
// incremental assignment matches single articles against open issue
// centroids.
package clustering

import (
	"fmt"
	"math"
	"reflect"
	"sort"

	"github.com/humilityai/hdbscan"

	"issuelens/internal/core"
	"issuelens/internal/logger"
)

// Config holds configuration for batch clustering.
type Config struct {
	MinClusterSize int // Minimum number of articles to form a cluster
	MinSamples     int // Minimum samples in neighborhood for core point
}

// DefaultConfig returns sensible defaults for batch clustering.
func DefaultConfig() Config {
	return Config{
		MinClusterSize: 3, // Allows smaller, more focused issues
		MinSamples:     1, // Low threshold - let HDBSCAN find natural groupings
	}
}

// Cluster is one group of articles found by batch clustering.
type Cluster struct {
	ArticleIDs []string  // IDs of member articles, in input order
	Centroid   []float64 // Mean embedding of the members
}

// Result holds the outcome of a batch clustering run. Every input
// article with an embedding appears exactly once: either in one
// cluster or in Noise.
type Result struct {
	Clusters []Cluster
	Noise    []string // Article IDs that did not join any cluster
}

// Engine implements density-based clustering for articles.
type Engine struct {
	minClusterSize int
	minSamples     int
}

// NewEngine creates a clustering engine.
func NewEngine(cfg Config) *Engine {
	if cfg.MinClusterSize < 2 {
		cfg.MinClusterSize = DefaultConfig().MinClusterSize
	}
	if cfg.MinSamples < 1 {
		cfg.MinSamples = DefaultConfig().MinSamples
	}
	return &Engine{
		minClusterSize: cfg.MinClusterSize,
		minSamples:     cfg.MinSamples,
	}
}

// cosineDistance computes cosine distance between two vectors.
// For high-dimensional embeddings (768 dims), cosine distance works
// much better than Euclidean.
func cosineDistance(x1, x2 []float64) float64 {
	if len(x1) != len(x2) {
		return 1.0 // Maximum distance for mismatched dimensions
	}

	var dotProduct, mag1, mag2 float64
	for i := range x1 {
		dotProduct += x1[i] * x2[i]
		mag1 += x1[i] * x1[i]
		mag2 += x2[i] * x2[i]
	}

	if mag1 == 0 || mag2 == 0 {
		return 1.0
	}

	similarity := dotProduct / (math.Sqrt(mag1) * math.Sqrt(mag2))

	// Clamp to [-1, 1] to handle floating point errors
	if similarity > 1.0 {
		similarity = 1.0
	} else if similarity < -1.0 {
		similarity = -1.0
	}

	return 1.0 - similarity
}

// Cluster runs density-based clustering on articles using their
// embeddings. Articles without embeddings are ignored. HDBSCAN
// discovers the number of clusters itself; articles in low-density
// regions come back in Result.Noise rather than being forced into a
// cluster.
func (e *Engine) Cluster(articles []core.Article) (*Result, error) {
	if len(articles) == 0 {
		return nil, fmt.Errorf("%w: no articles to cluster", core.ErrClustering)
	}

	var embedded []core.Article
	for _, article := range articles {
		if len(article.Embedding) > 0 {
			embedded = append(embedded, article)
		}
	}
	if len(embedded) == 0 {
		return nil, fmt.Errorf("%w: no articles have embeddings", core.ErrClustering)
	}

	// Too few articles to find density structure: everything is noise
	// until more coverage arrives.
	if len(embedded) < e.minClusterSize {
		result := &Result{Noise: articleIDs(embedded)}
		return result, nil
	}

	dataPoints := make([][]float64, len(embedded))
	for i, article := range embedded {
		dataPoints[i] = article.Embedding
	}

	clustering, err := hdbscan.NewClustering(dataPoints, e.minClusterSize)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create clustering: %v", core.ErrClustering, err)
	}

	clustering = clustering.OutlierDetection()

	if err := clustering.Run(cosineDistance, hdbscan.VarianceScore, true); err != nil {
		return nil, fmt.Errorf("%w: clustering run failed: %v", core.ErrClustering, err)
	}

	result := e.toResult(embedded, clustering)

	logger.Info("batch clustering finished",
		"articles", len(embedded),
		"clusters", len(result.Clusters),
		"noise", len(result.Noise))

	return result, nil
}

// toResult converts the library's clustering output into a Result.
// Cluster ordering is made deterministic by sorting on the first
// member's input position.
func (e *Engine) toResult(articles []core.Article, clustering *hdbscan.Clustering) *Result {
	clusterData := extractClusterData(clustering)

	// Point index -> cluster index. An article claimed by two clusters
	// stays with the first so the partition invariant holds.
	pointToCluster := make(map[int]int)
	for clusterIdx, cluster := range clusterData {
		for _, pointIdx := range cluster.Points {
			if _, taken := pointToCluster[pointIdx]; !taken {
				pointToCluster[pointIdx] = clusterIdx
			}
		}
	}

	memberIndexes := make(map[int][]int)
	var noise []string
	for i := range articles {
		clusterIdx, found := pointToCluster[i]
		if !found {
			noise = append(noise, articles[i].ID)
			continue
		}
		memberIndexes[clusterIdx] = append(memberIndexes[clusterIdx], i)
	}

	clusterIdxs := make([]int, 0, len(memberIndexes))
	for idx := range memberIndexes {
		clusterIdxs = append(clusterIdxs, idx)
	}
	sort.Slice(clusterIdxs, func(a, b int) bool {
		return memberIndexes[clusterIdxs[a]][0] < memberIndexes[clusterIdxs[b]][0]
	})

	clusters := make([]Cluster, 0, len(clusterIdxs))
	for _, clusterIdx := range clusterIdxs {
		var members []core.Article
		var ids []string
		for _, i := range memberIndexes[clusterIdx] {
			members = append(members, articles[i])
			ids = append(ids, articles[i].ID)
		}

		centroid := clusterData[clusterIdx].Centroid
		if len(centroid) == 0 {
			centroid = CalculateCentroid(members)
		}

		clusters = append(clusters, Cluster{
			ArticleIDs: ids,
			Centroid:   centroid,
		})
	}

	return &Result{Clusters: clusters, Noise: noise}
}

// CalculateCentroid computes the average embedding for a set of articles.
func CalculateCentroid(articles []core.Article) []float64 {
	if len(articles) == 0 {
		return nil
	}

	embeddingDim := len(articles[0].Embedding)
	centroid := make([]float64, embeddingDim)

	for _, article := range articles {
		for i, val := range article.Embedding {
			centroid[i] += val
		}
	}

	for i := range centroid {
		centroid[i] /= float64(len(articles))
	}

	return centroid
}

func articleIDs(articles []core.Article) []string {
	ids := make([]string, len(articles))
	for i, article := range articles {
		ids[i] = article.ID
	}
	return ids
}

// clusterData holds cluster information extracted from the library.
type clusterData struct {
	Centroid []float64
	Points   []int
}

// extractClusterData uses reflection to read cluster assignments out
// of the library's Clustering struct, whose cluster slice element type
// is unexported.
func extractClusterData(clustering *hdbscan.Clustering) []clusterData {
	v := reflect.ValueOf(clustering).Elem()
	clustersField := v.FieldByName("Clusters")

	if !clustersField.IsValid() {
		logger.Warn("could not access Clusters field on clustering result")
		return []clusterData{}
	}

	numClusters := clustersField.Len()
	result := make([]clusterData, numClusters)

	for i := 0; i < numClusters; i++ {
		clusterPtr := clustersField.Index(i)
		if clusterPtr.Kind() == reflect.Ptr {
			clusterPtr = clusterPtr.Elem()
		}

		centroidField := clusterPtr.FieldByName("Centroid")
		if centroidField.IsValid() && centroidField.Kind() == reflect.Slice {
			centroid := make([]float64, centroidField.Len())
			for j := 0; j < centroidField.Len(); j++ {
				centroid[j] = centroidField.Index(j).Float()
			}
			result[i].Centroid = centroid
		}

		pointsField := clusterPtr.FieldByName("Points")
		if pointsField.IsValid() && pointsField.Kind() == reflect.Slice {
			points := make([]int, pointsField.Len())
			for j := 0; j < pointsField.Len(); j++ {
				points[j] = int(pointsField.Index(j).Int())
			}
			result[i].Points = points
		}
	}

	return result
}
