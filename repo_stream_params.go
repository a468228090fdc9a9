package libsse

import (
	"context"
	"net/http"
	"net/url"
)

type (
	// StreamParams is everything needed to open one stream attempt.
	StreamParams struct {
		URL    url.URL
		Header http.Header
	}

	StreamParamsGetter func(ctx context.Context) (StreamParams, error)

	// StreamParamsRepo resolves connection parameters per attempt, so rotated
	// credentials are picked up on every reconnect.
	StreamParamsRepo struct {
		logger logger
		getter StreamParamsGetter
	}
)

func (r StreamParamsRepo) Get(
	ctx context.Context,
) (params StreamParams, err error) {
	params, err = r.getter(ctx)
	if err != nil {
		r.logger.Errorf("cannot fetch stream params: %s", err)
	}
	return
}

func NewStreamParamsRepo(
	logger logger,
	getter StreamParamsGetter,
) StreamParamsRepo {
	return StreamParamsRepo{getter: getter, logger: logger}
}

// NewAPIKeyStreamParams returns a getter for an API-key authenticated event
// stream endpoint, optionally requesting inline image thumbnails.
func NewAPIKeyStreamParams(
	endpoint url.URL,
	apiKey string,
	withThumbnails bool,
) StreamParamsGetter {
	return func(_ context.Context) (StreamParams, error) {
		u := endpoint
		if withThumbnails {
			q := u.Query()
			q.Set("images", "true")
			u.RawQuery = q.Encode()
		}

		header := make(http.Header)
		header.Set("X-API-Key", apiKey)

		return StreamParams{URL: u, Header: header}, nil
	}
}
