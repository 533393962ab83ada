package api

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fosdem/glscale/lib/accel/memaccel"
	"github.com/fosdem/glscale/lib/config"
	"github.com/fosdem/glscale/lib/format"
	"github.com/fosdem/glscale/lib/picture"
	"github.com/fosdem/glscale/lib/stats"
	"github.com/fosdem/glscale/lib/theatre"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newApi(t *testing.T) (*Api, *httptest.Server) {
	th := theatre.NewWithBackend(memaccel.New(), &picture.HeapAllocator{}, nil)
	th.Profiles["small"] = format.Video{Chroma: format.PackedRGBA32, Width: 8, Height: 8}
	th.Profiles["rotated"] = format.Video{Chroma: format.PackedRGBA32, Width: 8, Height: 8, Orientation: format.RightTop}

	a := New(&config.ApiCfg{Bind: "127.0.0.1:0"}, th, nil)
	th.Start()
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(func() {
		srv.Close()
		th.Stop()
	})
	return a, srv
}

func pngBody(t *testing.T, w, h int) io.Reader {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 255, A: 255})
		}
	}
	buf := &bytes.Buffer{}
	require.NoError(t, png.Encode(buf, img))
	return buf
}

func put(t *testing.T, url string, body io.Reader) *http.Response {
	req, err := http.NewRequest(http.MethodPut, url, body)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = resp.Body.Close()
	})
	return resp
}

func TestScalePNG(t *testing.T) {
	_, srv := newApi(t)

	resp := put(t, srv.URL+"/api/scale/small", pngBody(t, 4, 4))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	img, err := png.Decode(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 8, 8), img.Bounds())
	r, g, b, a := img.At(7, 7).RGBA()
	assert.Equal(t, []uint32{0xffff, 0, 0, 0xffff}, []uint32{r, g, b, a})
}

func TestScaleJPEG(t *testing.T) {
	_, srv := newApi(t)

	resp := put(t, srv.URL+"/api/scale/small/jpeg", pngBody(t, 16, 8))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))

	img, err := jpeg.Decode(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 8, 8), img.Bounds())
}

func TestScaleErrors(t *testing.T) {
	_, srv := newApi(t)

	tests := []struct {
		name   string
		path   string
		body   io.Reader
		status int
	}{
		{"unknown profile", "/api/scale/huge", pngBody(t, 4, 4), http.StatusNotFound},
		{"unknown format", "/api/scale/small/bmp", pngBody(t, 4, 4), http.StatusBadRequest},
		{"not an image", "/api/scale/small", strings.NewReader("hello"), http.StatusBadRequest},
		{"orientation mismatch", "/api/scale/rotated", pngBody(t, 4, 4), http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := put(t, srv.URL+tt.path, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestStatsFollowFrames(t *testing.T) {
	a, srv := newApi(t)

	resp := put(t, srv.URL+"/api/scale/small", pngBody(t, 4, 4))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = put(t, srv.URL+"/api/scale/rotated", pngBody(t, 4, 4))
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	require.Eventually(t, func() bool {
		s := a.Stats.Snapshot()
		return s.FramesProcessed == 1 && s.FramesDropped == 1
	}, time.Second, 10*time.Millisecond)

	got, err := http.Get(srv.URL + "/api/stats")
	require.NoError(t, err)
	defer func() {
		_ = got.Body.Close()
	}()
	var snap stats.Snapshot
	require.NoError(t, json.NewDecoder(got.Body).Decode(&snap))
	assert.Equal(t, uint64(1), snap.FramesProcessed)
	assert.Equal(t, uint64(1), snap.FramesDropped)
}

func TestConfig(t *testing.T) {
	_, srv := newApi(t)

	resp, err := http.Get(srv.URL + "/api/config")
	require.NoError(t, err)
	defer func() {
		_ = resp.Body.Close()
	}()
	var cfg Config
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cfg))
	require.Len(t, cfg.Profiles, 2)
	assert.Equal(t, Profile{Name: "rotated", Width: 8, Height: 8, Orientation: "right_top"}, cfg.Profiles[0])
	assert.Equal(t, "small", cfg.Profiles[1].Name)
	assert.Contains(t, cfg.Filters, "accel-scale")
}

func TestKill(t *testing.T) {
	a, srv := newApi(t)

	resp, err := http.Post(srv.URL+"/api/kill", "", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, a.theatre.ShutdownRequested.Load())

	resp, err = http.Get(srv.URL + "/api/kill")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestAudio(t *testing.T) {
	_, srv := newApi(t)

	resp := put(t, srv.URL+"/api/audio", strings.NewReader(`{"encoding":"spdif","rate":48000,"channels":2}`))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var f AudioFormatResp
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&f))
	assert.Equal(t, 1536, f.BlockSamples)
	assert.Equal(t, 6144, f.BytesPerFrame)

	resp = put(t, srv.URL+"/api/audio", strings.NewReader(`{"encoding":"s16","rate":48000,"channels":2}`))
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&f))
	assert.Equal(t, 2048, f.BlockSamples)
	assert.Equal(t, 4, f.BytesPerFrame)

	resp = put(t, srv.URL+"/api/audio", strings.NewReader(`{"encoding":"u8","rate":48000,"channels":2}`))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	played, err := http.Post(srv.URL+"/api/audio/play?pts=1000", "application/octet-stream", bytes.NewReader(make([]byte, 64)))
	require.NoError(t, err)
	defer func() {
		_ = played.Body.Close()
	}()
	require.Equal(t, http.StatusOK, played.StatusCode)
	require.NoError(t, json.NewDecoder(played.Body).Decode(&f))
	assert.Equal(t, uint64(1), f.Played)
}

func TestWebsocketPushesEvents(t *testing.T) {
	a, srv := newApi(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer func() {
		_ = ws.Close()
	}()

	// the writer always starts with a stats snapshot
	_, msg, err := ws.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(msg), "frames_processed")
	require.Eventually(t, func() bool {
		return a.Stats.Snapshot().WsClients == 1
	}, time.Second, 10*time.Millisecond)

	resp := put(t, srv.URL+"/api/scale/small", pngBody(t, 4, 4))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		_, msg, err := ws.ReadMessage()
		require.NoError(t, err)
		var event theatre.EventFrameData
		if json.Unmarshal(msg, &event) == nil && event.Event != "" {
			assert.Equal(t, theatre.EventFrameProcessed, event.Event)
			assert.Equal(t, "small", event.Profile)
			break
		}
	}
}

func TestBroadcastDropsForStalledClient(t *testing.T) {
	a, _ := newApi(t)

	// nothing drains this client
	stalled := &wsClient{addr: "stalled", send: make(chan []byte, 2)}
	a.addClient(stalled)
	defer a.removeClient(stalled)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			a.broadcast(theatre.EventFrameData{Event: theatre.EventFrameDropped, Profile: "small"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		require.FailNow(t, "broadcast blocked on a stalled client")
	}

	assert.Len(t, stalled.send, 2)
	assert.Equal(t, 8, stalled.dropped)
	var event theatre.EventFrameData
	require.NoError(t, json.Unmarshal(<-stalled.send, &event))
	assert.Equal(t, theatre.EventFrameDropped, event.Event)
}

func TestMetricsAndSwagger(t *testing.T) {
	_, srv := newApi(t)

	resp := put(t, srv.URL+"/api/scale/small", pngBody(t, 4, 4))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	metrics, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer func() {
		_ = metrics.Body.Close()
	}()
	body, err := io.ReadAll(metrics.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "glscale_frames_processed_total")

	doc, err := http.Get(srv.URL + "/swagger/doc.json")
	require.NoError(t, err)
	defer func() {
		_ = doc.Body.Close()
	}()
	require.Equal(t, http.StatusOK, doc.StatusCode)
	body, err = io.ReadAll(doc.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "/api/scale/{profile}")
}
