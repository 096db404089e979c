package backends

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/apkdrop/apkdrop/common"
	"github.com/apkdrop/apkdrop/common/config"
	"github.com/apkdrop/apkdrop/common/rcontext"
)

var buzzheavierApiUrl = "https://buzzheavier.com/api"
var buzzheavierUploadUrl = "https://w.buzzheavier.com"
var buzzheavierViewUrl = "https://buzzheavier.com/"

// Upload location ids published by the host
const BuzzheavierLocationCentralEurope = "3eb9t1559lkv"
const BuzzheavierLocationEasternUs = "12brteedoy0f"
const BuzzheavierLocationWesternUs = "95542dt0et21"

type buzzheavierBackend struct {
	api          *apiClient
	accountId    string
	locationId   string
	rootFolderId string
}

type buzzheavierEntry struct {
	Id   string `json:"id"`
	Name string `json:"name"`
}

type buzzheavierListing struct {
	Id       string             `json:"id"`
	Name     string             `json:"name"`
	Children []buzzheavierEntry `json:"children"`
}

func newBuzzheavierBackend(conf config.BackendConfig) *buzzheavierBackend {
	accountId := conf.Options["accountId"]
	locationId := conf.Options["locationId"]
	if locationId == "" {
		locationId = BuzzheavierLocationEasternUs
	}
	b := &buzzheavierBackend{
		accountId:  accountId,
		locationId: locationId,
	}
	b.api = newApiClient("buzzheavier", func(req *http.Request) {
		if accountId != "" {
			req.Header.Set("Authorization", "Bearer "+accountId)
		}
	})
	return b
}

func (b *buzzheavierBackend) Id() string {
	return "buzzheavier"
}

func (b *buzzheavierBackend) HasFolders() bool {
	return true
}

func (b *buzzheavierBackend) RootFolder() string {
	return b.rootFolderId
}

func (b *buzzheavierBackend) Connect(ctx rcontext.RequestContext) error {
	if b.accountId == "" {
		return &TransportError{Backend: "buzzheavier", Op: "connect", Err: common.ErrAuthFailed}
	}

	if err := b.requestJson(ctx, "connect", http.MethodGet, buzzheavierApiUrl+"/account", nil, nil); err != nil {
		return err
	}

	root := buzzheavierListing{}
	if err := b.requestJson(ctx, "connect", http.MethodGet, buzzheavierApiUrl+"/fs", nil, &root); err != nil {
		return err
	}
	b.rootFolderId = root.Id
	ctx.Log.Info("Connected to buzzheavier")
	return nil
}

func (b *buzzheavierBackend) FindFolder(ctx rcontext.RequestContext, parentId string, name string) (string, error) {
	listing := buzzheavierListing{}
	err := b.requestJson(ctx, "listFolder", http.MethodGet, buzzheavierApiUrl+"/fs/"+parentId, nil, &listing)
	if err != nil {
		if IsNotFound(err) {
			return "", &TransportError{Backend: "buzzheavier", Op: "listFolder", Code: http.StatusNotFound, Err: common.ErrParentNotFound}
		}
		return "", err
	}

	for _, child := range listing.Children {
		if child.Name == name {
			return child.Id, nil
		}
	}
	return "", common.ErrFolderNotFound
}

func (b *buzzheavierBackend) CreateFolder(ctx rcontext.RequestContext, parentId string, name string) (string, error) {
	created := buzzheavierEntry{}
	err := b.requestJson(ctx, "createFolder", http.MethodPost, buzzheavierApiUrl+"/fs/"+parentId, map[string]string{"name": name}, &created)
	if err != nil {
		if IsNotFound(err) {
			return "", &TransportError{Backend: "buzzheavier", Op: "createFolder", Code: http.StatusNotFound, Err: common.ErrParentNotFound}
		}
		return "", err
	}
	if created.Id == "" {
		return "", &TransportError{Backend: "buzzheavier", Op: "createFolder", Err: fmt.Errorf("no directory id in response")}
	}
	return created.Id, nil
}

func (b *buzzheavierBackend) Upload(ctx rcontext.RequestContext, folderId string, name string, r io.Reader, size int64) (string, error) {
	target := buzzheavierUploadUrl + "/" + url.PathEscape(name)
	if folderId != RootSentinel {
		target = buzzheavierUploadUrl + "/" + folderId + "/" + url.PathEscape(name)
	}
	target += "?locationId=" + url.QueryEscape(b.locationId)

	body, code, err := b.api.attempt(ctx.Context, "upload", func(reqCtx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(reqCtx, http.MethodPut, target, r)
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

	uploaded := buzzheavierEntry{}
	if err = b.decodeEnvelope(body, code, "upload", &uploaded); err != nil {
		return "", err
	}
	if uploaded.Id == "" {
		return "", &TransportError{Backend: "buzzheavier", Op: "upload", Code: code, Err: fmt.Errorf("no file id in response")}
	}
	return uploaded.Id, nil
}

func (b *buzzheavierBackend) Publish(ctx rcontext.RequestContext, folderId string, fileId string) (string, error) {
	if fileId == "" {
		return "", &PublishError{Backend: "buzzheavier", Err: fmt.Errorf("no file id to link")}
	}
	return buzzheavierViewUrl + fileId, nil
}

func (b *buzzheavierBackend) requestJson(ctx rcontext.RequestContext, op string, method string, target string, payload interface{}, out interface{}) error {
	var encoded []byte
	if payload != nil {
		var err error
		encoded, err = json.Marshal(payload)
		if err != nil {
			return &TransportError{Backend: "buzzheavier", Op: op, Err: err}
		}
	}

	body, code, err := b.api.do(ctx, op, remoteTimeout(), func(reqCtx context.Context) (*http.Request, error) {
		var reader io.Reader
		if encoded != nil {
			reader = bytes.NewReader(encoded)
		}
		req, err := http.NewRequestWithContext(reqCtx, method, target, reader)
		if err != nil {
			return nil, err
		}
		if encoded != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		return req, nil
	})
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return b.decodeEnvelope(body, code, op, out)
}

// decodeEnvelope unpacks buzzheavier's {"code": 200, "data": {...}} wrapper,
// falling back to the raw body for endpoints that answer unwrapped.
func (b *buzzheavierBackend) decodeEnvelope(body []byte, code int, op string, out interface{}) error {
	envelope := struct {
		Code int             `json:"code"`
		Data json.RawMessage `json:"data"`
	}{}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return &TransportError{Backend: "buzzheavier", Op: op, Code: code, Err: err}
	}
	raw := envelope.Data
	if len(raw) == 0 {
		raw = body
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &TransportError{Backend: "buzzheavier", Op: op, Code: code, Err: err}
	}
	return nil
}
