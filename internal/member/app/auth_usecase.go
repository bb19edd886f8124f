package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"festival_chat_service/internal/member/domain"
	"festival_chat_service/internal/member/repository"
	"festival_chat_service/pkg/encrypt"
	errprocess "festival_chat_service/pkg/err"
	"festival_chat_service/pkg/logger"
	token "festival_chat_service/pkg/token"
)

// TokenPair access token + 配對的 refresh token
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// AuthUseCase 這裡封裝了對外提供的應用服務
type AuthUseCase interface {
	Register(ctx context.Context, email, password string) error
	FindMember(ctx context.Context, param *domain.MemberQuery) (*domain.Member, error)
	Login(ctx context.Context, email, password string) (*TokenPair, error)
	// Refresh 輪替 refresh token 並換發新的 access token
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
	Logout(ctx context.Context, accessToken, refreshToken string) error
}

type authUseCase struct {
	memberRepo repository.MemberRepository
	refreshReg repository.RefreshTokenRegistry
}

// NewAuthUseCase 建立一個新的 AuthUseCase
func NewAuthUseCase(memberRepo repository.MemberRepository,
	refreshReg repository.RefreshTokenRegistry,
) AuthUseCase {
	return &authUseCase{
		memberRepo: memberRepo,
		refreshReg: refreshReg,
	}
}

// Register
func (m *authUseCase) Register(ctx context.Context, email, password string) error {
	// 檢查 email 是否已存在
	if _, err := m.memberRepo.FindByMember(ctx, &domain.MemberQuery{Email: &email}); err == nil {
		return errprocess.Conflict("email already exists")
	}

	pw, err := encrypt.HashPassword(password)
	if err != nil {
		return err
	}

	// 建立新使用者
	user := domain.Member{
		MemberID: uuid.New().String(),
		Email:    email,
		Password: pw,
	}

	logger.Log.Info(fmt.Sprintf("usecase Register : %s", user.MemberID))

	return m.memberRepo.CreateUser(ctx, &user)
}

// FindMember 查詢使用者
func (m *authUseCase) FindMember(ctx context.Context, param *domain.MemberQuery) (*domain.Member, error) {
	return m.memberRepo.FindByMember(ctx, param)
}

// Login
func (m *authUseCase) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	member, err := m.memberRepo.FindByMember(ctx, &domain.MemberQuery{Email: &email})
	if err != nil {
		logger.Log.Error("email can't find!!!")
		return nil, errprocess.NotFound("user not found")
	}

	if err = member.IsPasswordMatch(password); err != nil {
		logger.Log.Error("password can't match!!!")
		return nil, errprocess.Forbidden("password mismatch")
	}

	member.Status = domain.MemberStatusOnLine
	if err := m.memberRepo.UpdateMemberStatus(ctx, member); err != nil {
		return nil, err
	}

	return m.issuePair(ctx, member.MemberID)
}

// Refresh 單次性輪替：舊 token 兌換即作廢，重放會整批撤銷
func (m *authUseCase) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	memberID, newRefresh, err := m.refreshReg.Redeem(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	access, err := token.GenerateJWTWrapper(memberID, string(token.RoleMember))
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: newRefresh}, nil
}

// Logout
func (m *authUseCase) Logout(ctx context.Context, accessToken, refreshToken string) error {
	tokenInfo, err := token.ParseJWTWrapper(accessToken)
	if err != nil {
		logger.Log.Error("Logout err :", zap.String("err", err.Error()))
		return err
	}

	if err := m.refreshReg.Revoke(ctx, refreshToken); err != nil {
		logger.Log.Errorf("revoke refresh token failed :", err, zap.String("memberID", tokenInfo.MemberID))
	}

	return m.memberRepo.UpdateMemberStatus(ctx, &domain.Member{
		MemberID: tokenInfo.MemberID,
		Status:   domain.MemberStatusOffLine,
	})
}

func (m *authUseCase) issuePair(ctx context.Context, memberID string) (*TokenPair, error) {
	access, err := token.GenerateJWTWrapper(memberID, string(token.RoleMember))
	if err != nil {
		return nil, err
	}
	refresh, err := m.refreshReg.Issue(ctx, memberID)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
