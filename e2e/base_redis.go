package e2e

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/gookit/color"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
)

type BaseRedisSuite struct {
	suite.Suite
	Config Config
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseRedisSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.RedisAddr == "" {
		s.T().Skip("E2E_REDIS_ADDR not set")
	}
}

func (s *BaseRedisSuite) header(t *testing.T, name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	t.Log(header)
}

// WithRedis provides a fresh client within a contextual test step
func (s *BaseRedisSuite) WithRedis(name string, fn func(ctx context.Context, client *goredis.Client)) {
	s.header(s.T(), name)
	client := goredis.NewClient(&goredis.Options{Addr: s.Config.RedisAddr})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.Require().NoError(client.Ping(ctx).Err(), "Failed to reach Redis at "+s.Config.RedisAddr)

	fn(ctx, client)
}
