package backends

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/apkdrop/apkdrop/common/config"
	"github.com/apkdrop/apkdrop/common/rcontext"
)

var pixeldrainApiUrl = "https://pixeldrain.com/api"
var pixeldrainViewUrl = "https://pixeldrain.com/u/"

// pixeldrain has no folder concept: everything lands in the account's flat
// file list and links are minted straight from file ids.
type pixeldrainBackend struct {
	api    *apiClient
	apiKey string
}

func newPixeldrainBackend(conf config.BackendConfig) *pixeldrainBackend {
	apiKey := conf.Options["apiKey"]
	p := &pixeldrainBackend{apiKey: apiKey}
	p.api = newApiClient("pixeldrain", func(req *http.Request) {
		if apiKey != "" {
			req.SetBasicAuth("", apiKey)
		}
	})
	return p
}

func (p *pixeldrainBackend) Id() string {
	return "pixeldrain"
}

func (p *pixeldrainBackend) HasFolders() bool {
	return false
}

func (p *pixeldrainBackend) RootFolder() string {
	return RootSentinel
}

func (p *pixeldrainBackend) Connect(ctx rcontext.RequestContext) error {
	if p.apiKey == "" {
		// Anonymous uploads are allowed; nothing to verify
		ctx.Log.Debug("No pixeldrain api key configured - uploading anonymously")
		return nil
	}

	files := struct {
		Files []struct {
			Id string `json:"id"`
		} `json:"files"`
	}{}
	return p.api.doJson(ctx, "connect", connectTimeout(), func(reqCtx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(reqCtx, http.MethodGet, pixeldrainApiUrl+"/user/files", nil)
	}, &files)
}

func (p *pixeldrainBackend) FindFolder(ctx rcontext.RequestContext, parentId string, name string) (string, error) {
	return RootSentinel, nil
}

func (p *pixeldrainBackend) CreateFolder(ctx rcontext.RequestContext, parentId string, name string) (string, error) {
	return RootSentinel, nil
}

func (p *pixeldrainBackend) Upload(ctx rcontext.RequestContext, folderId string, name string, r io.Reader, size int64) (string, error) {
	body, code, err := p.api.attempt(ctx.Context, "upload", func(reqCtx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(reqCtx, http.MethodPut, pixeldrainApiUrl+"/file/"+url.PathEscape(name), r)
		if err != nil {
			return nil, err
		}
		if size > 0 {
			req.ContentLength = size
		}
		return req, nil
	})
	if err != nil {
		return "", err
	}

	// The PUT endpoint answers with JSON even when labelled text/plain
	uploaded := struct {
		Id string `json:"id"`
	}{}
	if err = json.Unmarshal(body, &uploaded); err != nil {
		return "", &TransportError{Backend: "pixeldrain", Op: "upload", Code: code, Err: err}
	}
	if uploaded.Id == "" {
		return "", &TransportError{Backend: "pixeldrain", Op: "upload", Code: code, Err: fmt.Errorf("no file id in response")}
	}
	return uploaded.Id, nil
}

func (p *pixeldrainBackend) Publish(ctx rcontext.RequestContext, folderId string, fileId string) (string, error) {
	if fileId == "" {
		return "", &PublishError{Backend: "pixeldrain", Err: fmt.Errorf("no file id to link")}
	}
	return pixeldrainViewUrl + fileId, nil
}
