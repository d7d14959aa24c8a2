package integration

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/acectf/roster-sync/internal/registration"
	"github.com/acectf/roster-sync/internal/roster"
	"github.com/acectf/roster-sync/test-integration/roster-sync/helpers"
)

func fooTeam() registration.Team {
	return registration.Team{
		ID:         "team-1",
		Name:       "Foo",
		InviteCode: "FOO123",
		CaptainID:  "u-a",
		Members: []registration.Member{
			{ID: "u-a", Email: "a@x.com", FirstName: "Ada", LastName: "Lovelace"},
			{ID: "u-b", Email: "b@x.com", FirstName: "Bob", LastName: "Byte"},
		},
	}
}

func localTeam(store interface{ Teams() []roster.Team }, name string) *roster.Team {
	for _, t := range store.Teams() {
		if t.Name == name {
			return &t
		}
	}
	return nil
}

func decodeBody(resp *http.Response, v any) {
	defer func() {
		_ = resp.Body.Close()
	}()
	data, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	Expect(json.Unmarshal(data, v)).To(Succeed(), string(data))
}

func closeBody(resp *http.Response) {
	_ = resp.Body.Close()
}

var _ = Describe("Roster sync server", Label("server"), func() {
	var (
		tempDir string
		fake    *helpers.FakeRegistration
		server  *helpers.ServerTestHelper
	)

	BeforeEach(func() {
		tempDir = GinkgoT().TempDir()
		fake = helpers.NewFakeRegistration()
		fake.SetTeams(fooTeam())

		var err error
		server, err = helpers.NewServerTestHelper(ctx, tempDir, fake.BaseURL())
		Expect(err).NotTo(HaveOccurred())
		server.StartServer()
		server.WaitForServerReady(10 * time.Second)
	})

	AfterEach(func() {
		Expect(server.StopServer()).To(Succeed())
		fake.Close()
	})

	Context("Reconciliation", func() {
		It("creates registered teams and reports their local ids", func() {
			Eventually(func() map[string]int64 {
				return fake.Reported()
			}, 5*time.Second, 50*time.Millisecond).Should(HaveKey("team-1"))

			team := localTeam(server.Store(), "Foo")
			Expect(team).NotTo(BeNil())
			Expect(fake.Reported()["team-1"]).To(Equal(team.ID))

			members := 0
			for _, u := range server.Store().Users() {
				if u.TeamID != nil && *u.TeamID == team.ID {
					members++
				}
			}
			Expect(members).To(Equal(2))
			Expect(team.CaptainID).NotTo(BeNil())
		})

		It("logs in again when the registration token is revoked", func() {
			Eventually(fake.Reported, 5*time.Second, 50*time.Millisecond).Should(HaveKey("team-1"))
			logins := fake.Logins()

			fake.RevokeToken()
			resp, err := server.Login("ext-admin", "root@x.com", true)
			Expect(err).NotTo(HaveOccurred())
			closeBody(resp)

			resp, err = server.Post("/admin/registration-sync/manual-sync", "application/json", nil, nil)
			Expect(err).NotTo(HaveOccurred())
			closeBody(resp)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(fake.Logins()).To(Equal(logins + 1))
		})
	})

	Context("Admin API", func() {
		It("runs a manual team sync and reports status for admins", func() {
			resp, err := server.Login("ext-admin", "root@x.com", true)
			Expect(err).NotTo(HaveOccurred())
			closeBody(resp)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			second := fooTeam()
			second.ID, second.Name, second.CaptainID = "team-2", "Bar", ""
			second.Members = []registration.Member{{ID: "u-c", Email: "c@x.com", FirstName: "Cy"}}
			fake.SetTeams(fooTeam(), second)

			Eventually(func() int {
				resp, err := server.Post("/admin/registration-sync/manual-sync", "application/json", nil, nil)
				Expect(err).NotTo(HaveOccurred())
				closeBody(resp)
				return resp.StatusCode
			}, 5*time.Second, 50*time.Millisecond).Should(Equal(http.StatusOK))
			Expect(localTeam(server.Store(), "Bar")).NotTo(BeNil())

			logins := fake.Logins()
			resp, err = server.Get("/admin/registration-sync/status")
			Expect(err).NotTo(HaveOccurred())
			var status struct {
				Success        bool `json:"success"`
				Connected      bool `json:"connected"`
				TeamsAvailable int  `json:"teams_available"`
			}
			decodeBody(resp, &status)
			Expect(status.Connected).To(BeTrue())
			Expect(status.TeamsAvailable).To(Equal(2))
			Expect(fake.Logins()).To(Equal(logins), "status reuses the shared registration token")
		})

		It("forbids contestants from triggering syncs", func() {
			resp, err := server.Login("u-b", "b@x.com", false)
			Expect(err).NotTo(HaveOccurred())
			closeBody(resp)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			resp, err = server.Post("/admin/score-sync/manual-sync", "application/json", nil, nil)
			Expect(err).NotTo(HaveOccurred())
			closeBody(resp)
			Expect(resp.StatusCode).To(Equal(http.StatusForbidden))
		})

		It("rejects anonymous requests", func() {
			resp, err := server.Get("/admin/score-sync/preview")
			Expect(err).NotTo(HaveOccurred())
			closeBody(resp)
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})
	})

	Context("Score push", func() {
		It("pushes the local standings with external team ids", func() {
			Eventually(fake.Reported, 5*time.Second, 50*time.Millisecond).Should(HaveKey("team-1"))
			team := localTeam(server.Store(), "Foo")
			Expect(team).NotTo(BeNil())
			server.Store().SetScore(team.ID, 450, time.Now())

			resp, err := server.Login("ext-admin", "root@x.com", true)
			Expect(err).NotTo(HaveOccurred())
			closeBody(resp)

			resp, err = server.Get("/admin/score-sync/preview")
			Expect(err).NotTo(HaveOccurred())
			var preview struct {
				Count      int `json:"count"`
				Scoreboard []struct {
					TeamName string `json:"team_name"`
					Score    int64  `json:"score"`
					Rank     int    `json:"rank"`
				} `json:"scoreboard"`
			}
			decodeBody(resp, &preview)
			Expect(preview.Count).To(Equal(1))
			Expect(preview.Scoreboard[0].TeamName).To(Equal("Foo"))

			Eventually(func() int {
				resp, err := server.Post("/admin/score-sync/manual-sync", "application/json", nil, nil)
				Expect(err).NotTo(HaveOccurred())
				closeBody(resp)
				return resp.StatusCode
			}, 5*time.Second, 50*time.Millisecond).Should(Equal(http.StatusOK))

			Expect(fake.LastPush()).To(ContainElement(registration.ScoreEntry{
				TeamID:      "team-1",
				LocalTeamID: team.ID,
				Score:       450,
				Rank:        1,
			}))
		})
	})

	Context("Webhooks", func() {
		BeforeEach(func() {
			Eventually(fake.Reported, 5*time.Second, 50*time.Millisecond).Should(HaveKey("team-1"))
		})

		It("rejects unsigned notifications", func() {
			resp, err := server.Post("/webhooks/registration", "application/json",
				[]byte(`{"event":"team.deleted","data":{"id":"team-1"}}`), nil)
			Expect(err).NotTo(HaveOccurred())
			closeBody(resp)
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(localTeam(server.Store(), "Foo")).NotTo(BeNil())
		})

		It("deletes a team and keeps its accounts", func() {
			local := fake.Reported()["team-1"]
			resp, err := server.SendWebhook(fmt.Sprintf(`{"event":"team.deleted","data":{"id":"team-1","name":"Foo","ctfdTeamId":%d}}`, local))
			Expect(err).NotTo(HaveOccurred())
			closeBody(resp)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			Expect(localTeam(server.Store(), "Foo")).To(BeNil())
			Expect(server.Store().Users()).To(HaveLen(2))
		})

		It("detaches a removed member", func() {
			resp, err := server.SendWebhook(`{"event":"team.member_removed","data":{"teamId":"team-1","userId":"u-b"}}`)
			Expect(err).NotTo(HaveOccurred())
			closeBody(resp)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			for _, u := range server.Store().Users() {
				if u.Email == "b@x.com" {
					Expect(u.TeamID).To(BeNil())
				}
			}
		})

		It("answers 404 for an unknown team", func() {
			resp, err := server.SendWebhook(`{"event":"team.deleted","data":{"id":"nope","name":"Nope"}}`)
			Expect(err).NotTo(HaveOccurred())
			closeBody(resp)
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Context("SSO bridge", func() {
		It("redirects browser form logins to the challenges page", func() {
			resp, err := server.LoginWithForm("u-a", "a@x.com")
			Expect(err).NotTo(HaveOccurred())
			closeBody(resp)
			Expect(resp.StatusCode).To(Equal(http.StatusSeeOther))
			Expect(resp.Header.Get("Location")).To(HaveSuffix("/challenges"))
		})

		It("rejects tokens signed with another secret", func() {
			resp, err := server.Post("/sso/authenticate", "application/json", []byte(`{"token":"not.a.jwt"}`), nil)
			Expect(err).NotTo(HaveOccurred())
			closeBody(resp)
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})
	})
})
