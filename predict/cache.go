package predict

import (
	"math"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

type cachedPrediction struct {
	label      int
	confidence float64
}

// CachedClassifier memoises predictions for identical feature vectors.
// Errors are never cached.
type CachedClassifier struct {
	next  Classifier
	cache *lru.Cache[string, cachedPrediction]
}

func NewCachedClassifier(next Classifier, size int) (*CachedClassifier, error) {
	cache, err := lru.New[string, cachedPrediction](size)
	if err != nil {
		return nil, err
	}
	return &CachedClassifier{next: next, cache: cache}, nil
}

func (c *CachedClassifier) Predict(features []float64) (int, float64, error) {
	key := vectorKey(features)
	if hit, ok := c.cache.Get(key); ok {
		return hit.label, hit.confidence, nil
	}
	label, confidence, err := c.next.Predict(features)
	if err != nil {
		return 0, 0, err
	}
	c.cache.Add(key, cachedPrediction{label: label, confidence: confidence})
	return label, confidence, nil
}

// Len reports how many vectors are cached.
func (c *CachedClassifier) Len() int {
	return c.cache.Len()
}

// vectorKey uses the bit patterns so -0 and 0 or distinct NaNs never collide.
func vectorKey(features []float64) string {
	var b strings.Builder
	for i, v := range features {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatUint(math.Float64bits(v), 16))
	}
	return b.String()
}
