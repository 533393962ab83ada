package api

import (
	"errors"
	"fmt"
	"image/jpeg"
	"image/png"
	"net/http"

	"github.com/fosdem/glscale/lib/format"
	"github.com/fosdem/glscale/lib/imgsource"
	"github.com/fosdem/glscale/lib/picture"
	"github.com/fosdem/glscale/lib/theatre"
)

type MediaResponseType string

const (
	JPEG MediaResponseType = "jpeg"
	PNG  MediaResponseType = "png"
)

// @Summary	scale an image to one of the configured profiles
// @Router		/api/scale/{profile} [put]
// @Router		/api/scale/{profile}/{format} [put]
// @Tags		media
// @Param		profile	path	string				true	"Name of the output profile"
// @Param		format	path	MediaResponseType	false	"The image type to return, png when omitted"
// @Accept		png
// @Accept		jpeg
// @Success	200
// @Failure	400	{string}	string	"The body is not an image, or the format is not supported"
// @Failure	404	{string}	string	"The profile does not exist in the configuration"
// @Failure	422	{string}	string	"The scaler cannot handle this picture"
// @Failure	503	{string}	string	"The frame was dropped or the scaler is shutting down"
// @Produce	png
// @Produce	jpeg
func (a *Api) handleScale(w http.ResponseWriter, req *http.Request) {
	profile := req.PathValue("profile")
	responseType := MediaResponseType(req.PathValue("format"))
	if responseType == "" {
		responseType = PNG
	}
	if responseType != PNG && responseType != JPEG {
		http.Error(w, fmt.Sprintf("unsupported image format %q", responseType), http.StatusBadRequest)
		return
	}
	if _, ok := a.theatre.Profiles[profile]; !ok {
		http.Error(w, "Profile does not exist", http.StatusNotFound)
		return
	}

	in, kind, err := imgsource.Decode(req.Body, a.theatre.Alloc)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	a.log.Debug(fmt.Sprintf("scaling %s %s to %s", kind, in.Format, profile))

	out, err := a.theatre.Scale(req.Context(), profile, in)
	if err != nil {
		http.Error(w, fmt.Sprintf("could not scale: %s", err), scaleStatus(err))
		return
	}
	defer out.Release()

	img, err := picture.ToImage(out)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	switch responseType {
	case JPEG:
		w.Header().Set("Content-Type", "image/jpeg")
		err = jpeg.Encode(w, img, nil)
	default:
		w.Header().Set("Content-Type", "image/png")
		err = png.Encode(w, img)
	}
	if err != nil {
		a.log.Error(fmt.Sprintf("could not write response: %s", err))
	}
}

func scaleStatus(err error) int {
	var cfgErr *format.ConfigError
	switch {
	case errors.Is(err, theatre.ErrNoSuchProfile):
		return http.StatusNotFound
	case errors.As(err, &cfgErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, theatre.ErrDropped), errors.Is(err, theatre.ErrStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
