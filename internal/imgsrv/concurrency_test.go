package imgsrv

import (
	"io"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/any-hub/any-image/internal/cache"
	"github.com/any-hub/any-image/internal/config"
	"github.com/any-hub/any-image/internal/imaging"
	"github.com/any-hub/any-image/internal/logging"
	"github.com/any-hub/any-image/internal/pipeline"
	"github.com/any-hub/any-image/internal/server"
)

// gatedTransformer 在 gate 关闭前阻塞 Transform，用于让并发请求堆积在同一派生图上。
type gatedTransformer struct {
	inner      imaging.Transformer
	gate       chan struct{}
	transforms atomic.Int32
}

func (g *gatedTransformer) Probe(path string) (imaging.Dimensions, error) {
	return g.inner.Probe(path)
}

func (g *gatedTransformer) Transform(src io.Reader, opts imaging.Options) (io.ReadCloser, error) {
	g.transforms.Add(1)
	<-g.gate
	return g.inner.Transform(src, opts)
}

func TestConcurrentMissesBuildOnce(t *testing.T) {
	root := t.TempDir()
	writePNG(t, filepath.Join(root, "imgs", "photo.png"), 120, 80)

	store, err := cache.NewStore(root)
	require.NoError(t, err)
	logger := logging.Discard()
	transformer := &gatedTransformer{inner: imaging.New(imaging.Config{}), gate: make(chan struct{})}

	handler, err := NewHandler(Options{
		Config:   config.ImageConfig{ImgRoot: root, URLPrefix: []string{"imgs"}, AllowExt: []string{"png"}, IsWeak: true},
		Store:    store,
		Pipeline: pipeline.New(store, transformer, pipeline.Options{Logger: logger}),
		Logger:   logger,
	})
	require.NoError(t, err)
	app, err := server.NewApp(server.AppOptions{Logger: logger, Images: handler, ListenPort: 5000})
	require.NoError(t, err)

	const clients = 6
	var wg sync.WaitGroup
	statuses := make([]int, clients)
	bodies := make([][]byte, clients)
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			req := httptest.NewRequest("GET", "http://img.local/imgs/photo.png?size=60", nil)
			resp, err := app.Test(req, fiber.TestConfig{Timeout: 10 * time.Second})
			if err != nil {
				return
			}
			statuses[idx] = resp.StatusCode
			bodies[idx], _ = io.ReadAll(resp.Body)
		}(i)
	}

	require.Eventually(t, func() bool { return handler.InFlight() == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	close(transformer.gate)
	wg.Wait()

	for i := 0; i < clients; i++ {
		assert.Equal(t, fiber.StatusOK, statuses[i], "client %d", i)
		assert.Equal(t, bodies[0], bodies[i], "client %d", i)
	}
	assert.Equal(t, int32(1), transformer.transforms.Load())
	assert.Equal(t, 0, handler.InFlight())
}

func TestFollowerBuildsWhenLeaderNeverFinishes(t *testing.T) {
	root := t.TempDir()
	writePNG(t, filepath.Join(root, "imgs", "photo.png"), 120, 80)

	store, err := cache.NewStore(root)
	require.NoError(t, err)
	logger := logging.Discard()
	transformer := &countingTransformer{inner: imaging.New(imaging.Config{})}
	flights := cache.NewFlights()

	handler, err := NewHandler(Options{
		Config: config.ImageConfig{
			ImgRoot:       root,
			URLPrefix:     []string{"imgs"},
			AllowExt:      []string{"png"},
			IsWeak:        true,
			FlightTimeout: config.Duration(100 * time.Millisecond),
		},
		Store:    store,
		Pipeline: pipeline.New(store, transformer, pipeline.Options{Logger: logger}),
		Flights:  flights,
		Logger:   logger,
	})
	require.NoError(t, err)
	app, err := server.NewApp(server.AppOptions{Logger: logger, Images: handler, ListenPort: 5000})
	require.NoError(t, err)

	// 占住 leader 位置且永不 Finish
	_, leader := flights.Join(filepath.Join(root, "imgs", "photo_k_60.png"))
	require.True(t, leader)

	started := time.Now()
	req := httptest.NewRequest("GET", "http://img.local/imgs/photo.png?size=60", nil)
	resp, err := app.Test(req, fiber.TestConfig{Timeout: 5 * time.Second})
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusOK, resp.StatusCode, string(body))
	assert.GreaterOrEqual(t, time.Since(started), 100*time.Millisecond)
	assert.Less(t, time.Since(started), 4*time.Second)
	assert.Equal(t, int32(1), transformer.transforms.Load())
	assert.Equal(t, "photo_k_60", resp.Header.Get("Image-Name"))
}
