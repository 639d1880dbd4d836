package oauth

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"jobboard/internal/config"
)

const (
	kakaoTokenURL   = "https://kauth.kakao.com/oauth/token"
	kakaoProfileURL = "https://kapi.kakao.com/v2/user/me"
)

// KakaoProvider 实现 Kakao 授权码登录。
type KakaoProvider struct {
	cfg        config.OAuthProviderConfig
	httpClient *http.Client
}

// NewKakaoProvider 构造 Kakao 客户端。
func NewKakaoProvider(cfg config.OAuthProviderConfig) *KakaoProvider {
	return &KakaoProvider{cfg: cfg, httpClient: newHTTPClient()}
}

type kakaoTokenResponse struct {
	AccessToken string `json:"access_token"`
}

type kakaoProfileResponse struct {
	KakaoAccount struct {
		Email   string `json:"email"`
		Profile struct {
			Nickname string `json:"nickname"`
		} `json:"profile"`
	} `json:"kakao_account"`
}

// Exchange 用授权码换取用户邮箱与昵称。
func (p *KakaoProvider) Exchange(ctx context.Context, code string) (Profile, error) {
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {p.cfg.ClientID},
		"client_secret": {p.cfg.ClientSecret},
		"redirect_uri":  {p.cfg.RedirectURI},
		"code":          {code},
	}

	var token kakaoTokenResponse
	if err := postForm(ctx, p.httpClient, kakaoTokenURL, form, &token); err != nil {
		return Profile{}, err
	}
	if token.AccessToken == "" {
		return Profile{}, errors.New("kakao token response missing access token")
	}

	var profile kakaoProfileResponse
	if err := getJSON(ctx, p.httpClient, kakaoProfileURL, token.AccessToken, &profile); err != nil {
		return Profile{}, err
	}
	if profile.KakaoAccount.Email == "" {
		return Profile{}, errors.New("kakao profile missing email")
	}

	return Profile{
		Email: profile.KakaoAccount.Email,
		Name:  profile.KakaoAccount.Profile.Nickname,
	}, nil
}
