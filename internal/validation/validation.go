package validation

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"timeline-editor/internal/models"
)

const (
	MaxNameLength = 255
)

var ErrUnknownMediaType = errors.New("unknown media type - only mp4, mov, webm, png, jpg, gif, mp3, wav, m4a, ogg allowed")

var (
	once     sync.Once
	validate *validator.Validate
)

// Validator returns the shared validator instance. validator.Validate caches struct
// metadata and is safe for concurrent use.
func Validator() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Struct validates v and flattens field failures into one readable error.
func Struct(v any) error {
	err := Validator().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	return errors.New(strings.Join(FormatErrors(verrs), "; "))
}

// FormatErrors renders one line per failed field.
func FormatErrors(verrs validator.ValidationErrors) []string {
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		line := fmt.Sprintf("field '%s' failed on the '%s' tag", fe.Namespace(), fe.Tag())
		if fe.Param() != "" {
			line = fmt.Sprintf("%s (value: %s)", line, fe.Param())
		}
		out = append(out, line)
	}
	return out
}

var extensionTypes = map[string]models.AssetType{
	"mp4":  models.AssetVideo,
	"mov":  models.AssetVideo,
	"webm": models.AssetVideo,
	"png":  models.AssetImage,
	"jpg":  models.AssetImage,
	"jpeg": models.AssetImage,
	"gif":  models.AssetImage,
	"mp3":  models.AssetAudio,
	"m4a":  models.AssetAudio,
	"wav":  models.AssetAudio,
	"ogg":  models.AssetAudio,
}

// GuessAssetType infers the asset type from a source URI or file name.
func GuessAssetType(src string) (models.AssetType, error) {
	if i := strings.IndexAny(src, "?#"); i >= 0 {
		src = src[:i]
	}
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(src)), ".")
	if t, ok := extensionTypes[ext]; ok {
		return t, nil
	}
	return "", ErrUnknownMediaType
}

// DisplayName derives an asset name from its source, the way uploads were named by file.
func DisplayName(src string) string {
	if i := strings.IndexAny(src, "?#"); i >= 0 {
		src = src[:i]
	}
	name := path.Base(strings.TrimSuffix(src, "/"))
	if name == "." || name == "/" || name == "" {
		return "untitled"
	}
	if r := []rune(name); len(r) > MaxNameLength {
		name = string(r[:MaxNameLength])
	}
	return name
}
