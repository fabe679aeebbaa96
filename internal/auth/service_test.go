package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	"github.com/frahmantamala/song-requests/internal"
)

func TestAuth(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "Auth Module Suite")
}

const testSecret = "test-secret-that-is-long-enough-for-hs256"

var _ = ginkgo.Describe("JWTTokenGenerator", func() {
	var (
		generator *JWTTokenGenerator
		now       time.Time
	)

	ginkgo.BeforeEach(func() {
		now = time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC)
		generator = NewJWTTokenGenerator(testSecret, "song-requests", time.Hour).
			WithClock(func() time.Time { return now })
	})

	ginkgo.Describe("GenerateAccessToken", func() {
		ginkgo.It("should mint a token that validates back to the same operator", func() {
			issued, err := generator.GenerateAccessToken(internal.AdminUser{
				ID:             "op-1",
				Email:          "dj@example.com",
				OrganizationID: "org-1",
				Permissions:    []string{PermissionManageRequests},
			})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(issued.Token).ToNot(gomega.BeEmpty())
			gomega.Expect(issued.ExpiresAt).To(gomega.Equal(now.Add(time.Hour)))

			claims, err := generator.ValidateToken(issued.Token)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(claims.UserID).To(gomega.Equal("op-1"))
			gomega.Expect(claims.Subject).To(gomega.Equal("op-1"))
			gomega.Expect(claims.Issuer).To(gomega.Equal("song-requests"))

			user := claims.AdminUser()
			gomega.Expect(user.Email).To(gomega.Equal("dj@example.com"))
			gomega.Expect(user.OrganizationID).To(gomega.Equal("org-1"))
			gomega.Expect(user.HasPermission(PermissionManageRequests)).To(gomega.BeTrue())
		})

		ginkgo.It("should default permissions to manage_requests", func() {
			issued, err := generator.GenerateAccessToken(internal.AdminUser{ID: "op-2"})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			claims, err := generator.ValidateToken(issued.Token)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(claims.Permissions).To(gomega.ConsistOf(PermissionManageRequests))
		})

		ginkgo.It("should require a user id", func() {
			_, err := generator.GenerateAccessToken(internal.AdminUser{ID: "  "})
			gomega.Expect(err).To(gomega.HaveOccurred())
			gomega.Expect(internal.HasCode(err, internal.ErrCodeValidationFailed)).To(gomega.BeTrue())
		})
	})

	ginkgo.Describe("ValidateToken", func() {
		var token string

		ginkgo.BeforeEach(func() {
			issued, err := generator.GenerateAccessToken(internal.AdminUser{ID: "op-1"})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			token = issued.Token
		})

		ginkgo.It("should report expired tokens", func() {
			now = now.Add(2 * time.Hour)

			_, err := generator.ValidateToken(token)
			gomega.Expect(err).To(gomega.Equal(internal.ErrTokenExpired))
		})

		ginkgo.It("should reject tokens signed with another secret", func() {
			other := NewJWTTokenGenerator(strings.Repeat("x", 40), "song-requests", time.Hour).
				WithClock(func() time.Time { return now })

			_, err := other.ValidateToken(token)
			gomega.Expect(err).To(gomega.Equal(internal.ErrInvalidToken))
		})

		ginkgo.It("should reject tokens from another issuer", func() {
			other := NewJWTTokenGenerator(testSecret, "someone-else", time.Hour).
				WithClock(func() time.Time { return now })

			_, err := other.ValidateToken(token)
			gomega.Expect(err).To(gomega.Equal(internal.ErrInvalidToken))
		})

		ginkgo.It("should reject a different signing algorithm", func() {
			claims := &Claims{
				UserID: "op-1",
				RegisteredClaims: jwt.RegisteredClaims{
					Issuer:    "song-requests",
					ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
				},
			}
			unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			_, err = generator.ValidateToken(unsigned)
			gomega.Expect(err).To(gomega.Equal(internal.ErrInvalidToken))
		})

		ginkgo.It("should reject garbage", func() {
			_, err := generator.ValidateToken("not-a-token")
			gomega.Expect(err).To(gomega.Equal(internal.ErrInvalidToken))
		})
	})
})

var _ = ginkgo.Describe("DefaultPermissionChecker", func() {
	checker := NewPermissionChecker()

	ginkgo.It("should allow request management for managers and admins", func() {
		gomega.Expect(checker.CanManageRequests([]string{PermissionManageRequests})).To(gomega.BeTrue())
		gomega.Expect(checker.CanManageRequests([]string{"admin"})).To(gomega.BeTrue())
		gomega.Expect(checker.CanManageRequests([]string{"view_queue"})).To(gomega.BeFalse())
		gomega.Expect(checker.CanManageRequests(nil)).To(gomega.BeFalse())
	})

	ginkgo.It("should match any of the required permissions", func() {
		gomega.Expect(checker.HasAnyPermission([]string{"a", "b"}, []string{"c", "b"})).To(gomega.BeTrue())
		gomega.Expect(checker.HasAnyPermission([]string{"a"}, []string{"c"})).To(gomega.BeFalse())
		gomega.Expect(checker.IsAdmin([]string{"admin"})).To(gomega.BeTrue())
	})
})
