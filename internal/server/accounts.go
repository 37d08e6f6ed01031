package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	accountdomain "github.com/cloudtally/cloudtally/internal/account/domain"
	credentialdomain "github.com/cloudtally/cloudtally/internal/credential/domain"
	"github.com/cloudtally/cloudtally/pkg/db/pagination"
)

type createAccountRequest struct {
	OrgID             string `json:"org_id"`
	Name              string `json:"name"`
	Provider          string `json:"provider"`
	ProviderAccountID string `json:"provider_account_id"`
	Region            string `json:"region"`
}

func (s *Server) CreateAccount(c *gin.Context) {
	var req createAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if strings.TrimSpace(req.OrgID) == "" {
		AbortWithError(c, newValidationError("org_id", "required", "org_id is required"))
		return
	}
	orgID, _, err := parseOptionalUUID("org_id", req.OrgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		AbortWithError(c, newValidationError("name", "required", "name is required"))
		return
	}

	account, err := s.accountSvc.Create(c.Request.Context(), accountdomain.CreateRequest{
		OrgID:             orgID,
		Name:              req.Name,
		Provider:          req.Provider,
		ProviderAccountID: req.ProviderAccountID,
		Region:            req.Region,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, account)
}

func (s *Server) GetAccount(c *gin.Context) {
	accountID, err := parseUUIDParam(c, "account_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	account, err := s.accountSvc.GetByID(c.Request.Context(), accountID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}

func (s *Server) ListAccounts(c *gin.Context) {
	orgID, hasOrg, err := parseOptionalUUID("organization_id", c.Query("organization_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !hasOrg {
		AbortWithError(c, newValidationError("organization_id", "required", "organization_id is required"))
		return
	}

	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	accounts, pageInfo, err := s.accountSvc.List(c.Request.Context(), accountdomain.ListRequest{
		OrgID:    orgID,
		Provider: strings.TrimSpace(c.Query("provider")),
		Page:     page,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"results":   accounts,
		"page_info": pageInfo,
	})
}

type updateAccountRequest struct {
	Name   *string `json:"name"`
	Region *string `json:"region"`
	Active *bool   `json:"active"`
}

func (s *Server) UpdateAccount(c *gin.Context) {
	accountID, err := parseUUIDParam(c, "account_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req updateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	account, err := s.accountSvc.Update(c.Request.Context(), accountdomain.UpdateRequest{
		ID:     accountID,
		Name:   req.Name,
		Region: req.Region,
		Active: req.Active,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}

func (s *Server) DeleteAccount(c *gin.Context) {
	accountID, err := parseUUIDParam(c, "account_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.accountSvc.Delete(c.Request.Context(), accountID); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type registerOAuthRequest struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	Scope        string    `json:"scope"`
	TenantID     string    `json:"tenant_id"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func (s *Server) RegisterOAuthCredential(c *gin.Context) {
	accountID, err := parseUUIDParam(c, "account_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req registerOAuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		AbortWithError(c, newValidationError("refresh_token", "required", "refresh_token is required"))
		return
	}

	token, err := s.credentialSvc.RegisterOAuth(c.Request.Context(), credentialdomain.RegisterOAuthRequest{
		AccountID:    accountID,
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
		TokenType:    req.TokenType,
		Scope:        req.Scope,
		TenantID:     req.TenantID,
		ExpiresAt:    req.ExpiresAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, token)
}

type registerAWSRoleRequest struct {
	RoleARN    string `json:"role_arn"`
	ExternalID string `json:"external_id"`
	ReportName string `json:"report_name"`
}

func (s *Server) RegisterAWSRole(c *gin.Context) {
	accountID, err := parseUUIDParam(c, "account_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req registerAWSRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if strings.TrimSpace(req.RoleARN) == "" {
		AbortWithError(c, newValidationError("role_arn", "required", "role_arn is required"))
		return
	}

	role, err := s.credentialSvc.RegisterAWSRole(c.Request.Context(), credentialdomain.RegisterAWSRoleRequest{
		AccountID:  accountID,
		RoleARN:    req.RoleARN,
		ExternalID: req.ExternalID,
		ReportName: req.ReportName,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, role)
}
