package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/fosdem/glscale/lib/aout"
)

type AudioFormatReq struct {
	Encoding string `json:"encoding" example:"s16"`
	Rate     int    `json:"rate" example:"48000"`
	Channels int    `json:"channels" example:"2"`
}

type AudioFormatResp struct {
	Encoding      string `json:"encoding"`
	Rate          int    `json:"rate"`
	Channels      int    `json:"channels"`
	BytesPerFrame int    `json:"bytes_per_frame"`
	FrameLength   int    `json:"frame_length"`
	BlockSamples  int    `json:"block_samples,omitempty"`
	Played        uint64 `json:"played"`
}

var encodings = map[string]aout.Encoding{
	aout.S16.String():     aout.S16,
	aout.S32.String():     aout.S32,
	aout.Float32.String(): aout.Float32,
	aout.SPDIF.String():   aout.SPDIF,
}

func (a *Api) audioResp(blockSamples int) AudioFormatResp {
	f := a.theatre.Audio.Format()
	return AudioFormatResp{
		Encoding:      f.Encoding.String(),
		Rate:          f.Rate,
		Channels:      f.Channels,
		BytesPerFrame: f.BytesPerFrame,
		FrameLength:   f.FrameLength,
		BlockSamples:  blockSamples,
		Played:        a.theatre.Audio.Played(),
	}
}

// @Summary	Get the audio output format
// @Router		/api/audio [get]
// @Tags		audio
// @Produce	json
// @Success	200	{object}	AudioFormatResp
func (a *Api) getAudioFormat(w http.ResponseWriter, _ *http.Request) {
	a.writeJSON(w, a.audioResp(0))
}

// @Summary	Configure the audio output
// @Router		/api/audio [put]
// @Tags		audio
// @Param		format	body	AudioFormatReq	true	"The format to play"
// @Produce	json
// @Success	200	{object}	AudioFormatResp
// @Failure	400	{string}	string	"The request could not be decoded or names an unknown encoding"
func (a *Api) handleAudioFormat(w http.ResponseWriter, req *http.Request) {
	var formatReq AudioFormatReq
	err := json.NewDecoder(req.Body).Decode(&formatReq)
	if err != nil {
		http.Error(w, fmt.Sprintf("could not decode json request: %s", err), http.StatusBadRequest)
		return
	}
	enc, ok := encodings[formatReq.Encoding]
	if !ok {
		http.Error(w, fmt.Sprintf("unknown encoding %q", formatReq.Encoding), http.StatusBadRequest)
		return
	}
	if formatReq.Rate <= 0 || formatReq.Channels <= 0 {
		http.Error(w, "rate and channels must be positive", http.StatusBadRequest)
		return
	}

	f := &aout.Format{
		Encoding: enc,
		Rate:     formatReq.Rate,
		Channels: formatReq.Channels,
	}
	switch enc {
	case aout.S16:
		f.BytesPerFrame = 2 * f.Channels
	default:
		f.BytesPerFrame = 4 * f.Channels
	}
	f.FrameLength = 1
	samples := a.theatre.Audio.SetFormat(f)
	a.writeJSON(w, a.audioResp(samples))
}

// @Summary	Hand a block of samples to the audio output
// @Router		/api/audio/play [post]
// @Tags		audio
// @Param		pts	query	int	false	"Presentation time of the block in microseconds"
// @Accept		octet-stream
// @Produce	json
// @Success	200	{object}	AudioFormatResp
// @Failure	400	{string}	string	"The body could not be read"
func (a *Api) handleAudioPlay(w http.ResponseWriter, req *http.Request) {
	samples, err := io.ReadAll(req.Body)
	if err != nil {
		http.Error(w, fmt.Sprintf("could not read samples: %s", err), http.StatusBadRequest)
		return
	}
	var pts time.Duration
	if s := req.URL.Query().Get("pts"); s != "" {
		us, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid pts: %s", err), http.StatusBadRequest)
			return
		}
		pts = time.Duration(us) * time.Microsecond
	}

	count := 0
	if f := a.theatre.Audio.Format(); f.BytesPerFrame > 0 {
		count = len(samples) / f.BytesPerFrame * f.FrameLength
	}
	err = a.theatre.Audio.Play(aout.NewBuffer(samples, count, pts, nil))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	a.writeJSON(w, a.audioResp(0))
}

func (a *Api) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.log.Error(fmt.Sprintf("could not write response: %s", err))
	}
}
