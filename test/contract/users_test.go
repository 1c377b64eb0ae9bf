package contract

import (
	"net/http"

	"github.com/l0p7/usercheck/internal/contract"
	"github.com/l0p7/usercheck/internal/harness"
	"github.com/l0p7/usercheck/internal/scenarios"
	"github.com/l0p7/usercheck/internal/users"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func builtin(name string) harness.Scenario {
	for _, s := range scenarios.Builtin() {
		if s.Name == name {
			return s
		}
	}
	Fail("unknown scenario " + name)
	return harness.Scenario{}
}

var _ = Describe("Users API", func() {
	Context("When reading users", func() {
		It("should return user 2 with its identity fields", func() {
			resp, _ := builtin(scenarios.GetSingleUser).Exercise(e)

			var single users.SingleUser
			resp.JSON().Decode(&single)
			id, ok := single.Data.IDValue()
			Expect(ok).To(BeTrue())
			Expect(id).To(Equal(scenarios.ExistingUserID))
			avatar, ok := single.Data.AvatarValue()
			Expect(ok).To(BeTrue())
			Expect(avatar).NotTo(BeEmpty())
		})

		It("should list the first page", func() {
			resp, _ := builtin(scenarios.ListUsers).Exercise(e)

			var page users.UserPage
			resp.JSON().Decode(&page)
			Expect(page.Page).To(Equal(scenarios.FirstPage))
			Expect(page.Data).NotTo(BeEmpty())
			Expect(len(page.Data)).To(BeNumerically("<=", page.PerPage))
		})

		It("should answer 404 for a user that does not exist", func() {
			builtin(scenarios.GetMissingUser).Exercise(e)
		})
	})

	Context("When writing users", func() {
		It("should create a user and echo the payload", func() {
			resp, _ := builtin(scenarios.CreateUser).Exercise(e)

			var created users.CreatedUser
			resp.JSON().Decode(&created)
			Expect(created.ID).NotTo(BeEmpty())
			Expect(created.CreatedAt.IsZero()).To(BeFalse())
			Expect(created.LastName).To(Equal(scenarios.CreatePayload().LastName))
		})

		It("should update user 2", func() {
			resp, _ := builtin(scenarios.UpdateUser).Exercise(e)

			var updated users.UpdatedUser
			resp.JSON().Decode(&updated)
			Expect(updated.UpdatedAt.IsZero()).To(BeFalse())
			Expect(updated.LastName).To(Equal(scenarios.UpdatePayload().LastName))
		})

		It("should delete user 2 without a body", func() {
			builtin(scenarios.DeleteUser).Exercise(e)
		})

		It("should record what a repeated delete returns", func() {
			_, notes := scenarios.Observations()[0].Exercise(e)
			Expect(notes).To(HaveLen(2))
			for _, note := range notes {
				GinkgoWriter.Println(note)
			}
		})
	})

	Context("When checking the published contract", func() {
		It("should match the documented schema for every catalog response", func() {
			validator, err := contract.NewValidator(ctx, target.BaseURL(), "")
			Expect(err).NotTo(HaveOccurred())

			for _, s := range scenarios.Builtin() {
				resp, _ := s.Exercise(e)
				raw := resp.Raw()
				Expect(raw).NotTo(BeNil(), s.Name)
				body := []byte(resp.Body().Raw())
				err := validator.ValidateResponse(ctx, raw.Request, raw.StatusCode, raw.Header, body)
				Expect(err).NotTo(HaveOccurred(), s.Name)
			}
		})
	})

	Context("When the API key is missing", func() {
		It("should reject the request on the fake", func() {
			if fake == nil {
				Skip("the public service decides its own key policy")
			}
			bare := httpexpectWithoutKey()
			bare.GET("/users/2").Expect().Status(http.StatusUnauthorized)
		})
	})
})
