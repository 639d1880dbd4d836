package oauth

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"jobboard/internal/config"
)

const (
	naverTokenURL   = "https://nid.naver.com/oauth2.0/token"
	naverProfileURL = "https://openapi.naver.com/v1/nid/me"
)

// NaverProvider 实现 Naver 授权码登录。
type NaverProvider struct {
	cfg        config.OAuthProviderConfig
	httpClient *http.Client
}

// NewNaverProvider 构造 Naver 客户端。
func NewNaverProvider(cfg config.OAuthProviderConfig) *NaverProvider {
	return &NaverProvider{cfg: cfg, httpClient: newHTTPClient()}
}

type naverTokenResponse struct {
	AccessToken string `json:"access_token"`
}

type naverProfileResponse struct {
	Response struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	} `json:"response"`
}

// Exchange 用授权码换取用户邮箱与姓名。
func (p *NaverProvider) Exchange(ctx context.Context, code string) (Profile, error) {
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {p.cfg.ClientID},
		"client_secret": {p.cfg.ClientSecret},
		"redirect_uri":  {p.cfg.RedirectURI},
		"code":          {code},
	}

	var token naverTokenResponse
	if err := postForm(ctx, p.httpClient, naverTokenURL, form, &token); err != nil {
		return Profile{}, err
	}
	if token.AccessToken == "" {
		return Profile{}, errors.New("naver token response missing access token")
	}

	var profile naverProfileResponse
	if err := getJSON(ctx, p.httpClient, naverProfileURL, token.AccessToken, &profile); err != nil {
		return Profile{}, err
	}
	if profile.Response.Email == "" {
		return Profile{}, errors.New("naver profile missing email")
	}

	return Profile{
		Email: profile.Response.Email,
		Name:  profile.Response.Name,
	}, nil
}
