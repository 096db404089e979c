package backends

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/apkdrop/apkdrop/common"
	"github.com/apkdrop/apkdrop/common/config"
	"github.com/apkdrop/apkdrop/common/rcontext"
	"github.com/patrickmn/go-cache"
)

var gofileApiUrl = "https://api.gofile.io"
var gofileUploadUrl = "https://upload.gofile.io"
var gofileUploadRegions = map[string]string{
	"auto":   "https://upload.gofile.io",
	"eu-par": "https://upload-eu-par.gofile.io",
	"na-phx": "https://upload-na-phx.gofile.io",
	"ap-sgp": "https://upload-ap-sgp.gofile.io",
	"ap-hkg": "https://upload-ap-hkg.gofile.io",
	"ap-tyo": "https://upload-ap-tyo.gofile.io",
	"sa-sao": "https://upload-sa-sao.gofile.io",
}

type gofileBackend struct {
	api          *apiClient
	token        string
	accountId    string
	region       string
	rootFolderId string
	listings     *cache.Cache // folder id -> *gofileContents, briefly
}

type gofileEnvelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

type gofileChild struct {
	Id   string `json:"id"`
	Type string `json:"type"`
	Name string `json:"name"`
}

type gofileContents struct {
	Id       string                 `json:"id"`
	Name     string                 `json:"name"`
	Link     string                 `json:"link"`
	Code     string                 `json:"code"`
	Children map[string]gofileChild `json:"children"`
}

func newGofileBackend(conf config.BackendConfig) *gofileBackend {
	token := conf.Options["apiToken"]
	g := &gofileBackend{
		token:     token,
		accountId: conf.Options["accountId"],
		region:    conf.Options["region"],
		listings:  cache.New(30*time.Second, 1*time.Minute),
	}
	g.api = newApiClient("gofile", func(req *http.Request) {
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	})
	return g
}

func (g *gofileBackend) Id() string {
	return "gofile"
}

func (g *gofileBackend) HasFolders() bool {
	return true
}

func (g *gofileBackend) RootFolder() string {
	return g.rootFolderId
}

func (g *gofileBackend) Connect(ctx rcontext.RequestContext) error {
	if g.token == "" {
		return &TransportError{Backend: "gofile", Op: "connect", Err: common.ErrAuthFailed}
	}

	accountId := g.accountId
	if accountId == "" {
		idResp := struct {
			Id string `json:"id"`
		}{}
		if err := g.getJson(ctx, "connect", connectTimeout(), gofileApiUrl+"/accounts/getid", &idResp); err != nil {
			return err
		}
		accountId = idResp.Id
	}

	details := struct {
		RootFolder string `json:"rootFolder"`
		Email      string `json:"email"`
		Tier       string `json:"tier"`
	}{}
	if err := g.getJson(ctx, "connect", connectTimeout(), gofileApiUrl+"/accounts/"+accountId, &details); err != nil {
		return err
	}
	if details.RootFolder == "" {
		return &TransportError{Backend: "gofile", Op: "connect", Err: fmt.Errorf("account has no root folder")}
	}

	g.accountId = accountId
	g.rootFolderId = details.RootFolder
	ctx.Log.Infof("Connected to gofile as %s (tier: %s)", details.Email, details.Tier)
	return nil
}

func (g *gofileBackend) FindFolder(ctx rcontext.RequestContext, parentId string, name string) (string, error) {
	contents, err := g.getContent(ctx, parentId, true)
	if err != nil {
		return "", err
	}

	for _, child := range contents.Children {
		if child.Type == "folder" && child.Name == name {
			return child.Id, nil
		}
	}
	return "", common.ErrFolderNotFound
}

func (g *gofileBackend) CreateFolder(ctx rcontext.RequestContext, parentId string, name string) (string, error) {
	payload := map[string]string{
		"parentFolderId": parentId,
		"folderName":     name,
	}
	created := struct {
		Id string `json:"id"`
	}{}
	err := g.postJson(ctx, "createFolder", remoteTimeout(), gofileApiUrl+"/contents/createFolder", payload, &created)
	if err != nil {
		// Creating under a vanished parent is the stale cache symptom
		if IsNotFound(err) {
			return "", &TransportError{Backend: "gofile", Op: "createFolder", Code: http.StatusNotFound, Err: common.ErrParentNotFound}
		}
		return "", err
	}
	if created.Id == "" {
		return "", &TransportError{Backend: "gofile", Op: "createFolder", Err: fmt.Errorf("no folder id in response")}
	}

	g.listings.Delete(parentId)
	return created.Id, nil
}

func (g *gofileBackend) Upload(ctx rcontext.RequestContext, folderId string, name string, r io.Reader, size int64) (string, error) {
	uploadUrl := gofileUploadUrl
	if regional, ok := gofileUploadRegions[g.region]; ok {
		uploadUrl = regional
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		var copyErr error
		if folderId != RootSentinel {
			copyErr = mw.WriteField("folderId", folderId)
		}
		if copyErr == nil {
			var part io.Writer
			part, copyErr = mw.CreateFormFile("file", name)
			if copyErr == nil {
				_, copyErr = io.Copy(part, r)
			}
		}
		if copyErr == nil {
			copyErr = mw.Close()
		}
		_ = pw.CloseWithError(copyErr)
	}()

	// Streaming bodies can't be replayed, so no 429 retry loop here.
	body, code, err := g.api.attempt(ctx.Context, "upload", func(reqCtx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, uploadUrl+"/uploadfile", pr)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", mw.FormDataContentType())
		return req, nil
	})
	if err != nil {
		return "", err
	}

	uploaded := struct {
		FileId       string `json:"fileId"`
		DownloadPage string `json:"downloadPage"`
	}{}
	if err = g.decodeEnvelope(body, code, "upload", &uploaded); err != nil {
		return "", err
	}
	return uploaded.FileId, nil
}

func (g *gofileBackend) Publish(ctx rcontext.RequestContext, folderId string, fileId string) (string, error) {
	payload := map[string]string{
		"attribute":      "public",
		"attributeValue": "true",
	}
	err := g.requestJson(ctx, "publish", remoteTimeout(), http.MethodPut, gofileApiUrl+"/contents/"+folderId+"/update", payload, nil)
	if err != nil {
		return "", &PublishError{Backend: "gofile", Err: err}
	}

	// Fresh read - the cached listing predates the public flip
	g.listings.Delete(folderId)
	contents, err := g.getContent(ctx, folderId, false)
	if err != nil {
		return "", &PublishError{Backend: "gofile", Err: err}
	}

	if contents.Link != "" {
		return contents.Link, nil
	}
	if contents.Code != "" {
		return "https://gofile.io/d/" + contents.Code, nil
	}
	return "", &PublishError{Backend: "gofile", Err: fmt.Errorf("folder has no link or code")}
}

func (g *gofileBackend) getContent(ctx rcontext.RequestContext, contentId string, useCache bool) (*gofileContents, error) {
	if useCache {
		if cached, ok := g.listings.Get(contentId); ok {
			return cached.(*gofileContents), nil
		}
	}

	contents := &gofileContents{}
	err := g.getJson(ctx, "getContent", remoteTimeout(), gofileApiUrl+"/contents/"+contentId, contents)
	if err != nil {
		if IsNotFound(err) {
			return nil, &TransportError{Backend: "gofile", Op: "getContent", Code: http.StatusNotFound, Err: common.ErrParentNotFound}
		}
		return nil, err
	}

	g.listings.SetDefault(contentId, contents)
	return contents, nil
}

func (g *gofileBackend) getJson(ctx rcontext.RequestContext, op string, timeout time.Duration, url string, out interface{}) error {
	return g.requestJson(ctx, op, timeout, http.MethodGet, url, nil, out)
}

func (g *gofileBackend) postJson(ctx rcontext.RequestContext, op string, timeout time.Duration, url string, payload interface{}, out interface{}) error {
	return g.requestJson(ctx, op, timeout, http.MethodPost, url, payload, out)
}

func (g *gofileBackend) requestJson(ctx rcontext.RequestContext, op string, timeout time.Duration, method string, url string, payload interface{}, out interface{}) error {
	var encoded []byte
	if payload != nil {
		var err error
		encoded, err = json.Marshal(payload)
		if err != nil {
			return &TransportError{Backend: "gofile", Op: op, Err: err}
		}
	}

	body, code, err := g.api.do(ctx, op, timeout, func(reqCtx context.Context) (*http.Request, error) {
		var reader io.Reader
		if encoded != nil {
			reader = bytes.NewReader(encoded)
		}
		req, err := http.NewRequestWithContext(reqCtx, method, url, reader)
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
	return g.decodeEnvelope(body, code, op, out)
}

// decodeEnvelope unpacks gofile's {"status": "ok", "data": {...}} wrapper.
func (g *gofileBackend) decodeEnvelope(body []byte, code int, op string, out interface{}) error {
	envelope := gofileEnvelope{}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return &TransportError{Backend: "gofile", Op: op, Code: code, Err: err}
	}
	if envelope.Status != "ok" {
		wrapped := fmt.Errorf("api status %q", envelope.Status)
		if strings.Contains(envelope.Status, "notFound") {
			wrapped = common.ErrFolderNotFound
		}
		return &TransportError{Backend: "gofile", Op: op, Code: code, Err: wrapped}
	}
	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return &TransportError{Backend: "gofile", Op: op, Code: code, Err: err}
		}
	}
	return nil
}
