package agent

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// CachedImageGenerator 按完整提示词缓存出图结果，失败结果不缓存
type CachedImageGenerator struct {
	next  ImageGenerator
	cache *cache.Cache
}

func NewCachedImageGenerator(next ImageGenerator, ttl time.Duration) *CachedImageGenerator {
	return &CachedImageGenerator{
		next:  next,
		cache: cache.New(ttl, 2*ttl),
	}
}

func (g *CachedImageGenerator) Generate(ctx context.Context, prompt string) (*ImageResult, error) {
	if v, ok := g.cache.Get(prompt); ok {
		stageLog(ctx, StageIllustrating).Debug("image cache hit")
		return v.(*ImageResult), nil
	}
	res, err := g.next.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	g.cache.SetDefault(prompt, res)
	return res, nil
}
