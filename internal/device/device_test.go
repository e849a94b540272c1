// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"bytes"
	"errors"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/tidwall/gjson"
	logf "sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/ironcore-dev/netconf-ospf/internal/deviceutil"
	"github.com/ironcore-dev/netconf-ospf/internal/provider"
	"github.com/ironcore-dev/netconf-ospf/internal/provider/brocade/nos"
)

var _ = Describe("Device", func() {
	var (
		out *bytes.Buffer
		dev *Device
	)

	BeforeEach(func() {
		out = new(bytes.Buffer)
		var err error
		dev, err = New(deviceutil.Connection{Address: "192.0.2.1"}, WithProvider(testProviderName), WithOutput(out))
		Expect(err).NotTo(HaveOccurred())
	})

	Context("New", func() {
		It("should reject an empty address", func() {
			_, err := New(deviceutil.Connection{Address: "  "}, WithProvider(testProviderName))
			Expect(err).To(MatchError(ErrNoAddress))
		})

		It("should reject an unknown provider", func() {
			_, err := New(deviceutil.Connection{Address: "192.0.2.1"}, WithProvider("does-not-exist"))
			Expect(err).To(MatchError(ContainSubstring(`unknown provider "does-not-exist"`)))
		})

		It("should start unconnected and apply connection defaults", func() {
			Expect(dev.State()).To(Equal(Unconnected))
			Expect(dev.Address()).To(Equal("192.0.2.1"))

			Expect(dev.Connect(ctx)).To(Succeed())
			Expect(testProvider.Connections).To(HaveLen(1))
			conn := testProvider.Connections[0]
			Expect(conn.Username).To(Equal(deviceutil.DefaultUsername))
			Expect(conn.Password).To(Equal(deviceutil.DefaultPassword))
			Expect(conn.Port).To(Equal(deviceutil.DefaultPort))
			Expect(conn.Timeout).To(Equal(deviceutil.DefaultTimeout))
			Expect(conn.HostKeyVerify).To(BeFalse())
			Expect(conn.AllowAgent).To(BeFalse())
			Expect(conn.LookForKeys).To(BeFalse())
		})

		It("should not alias the caller's key files", func() {
			keys := []string{"/tmp/id_ed25519"}
			d, err := New(deviceutil.Connection{Address: "192.0.2.1", KeyFiles: keys}, WithProvider(testProviderName), WithOutput(out))
			Expect(err).NotTo(HaveOccurred())
			keys[0] = "/tmp/changed"
			Expect(d.Connect(ctx)).To(Succeed())
			Expect(testProvider.Connections[0].KeyFiles).To(ConsistOf("/tmp/id_ed25519"))
		})
	})

	Context("Connect", func() {
		It("should move to connected", func() {
			Expect(dev.Connect(ctx)).To(Succeed())
			Expect(dev.State()).To(Equal(Connected))
			Expect(out.String()).To(BeEmpty())
		})

		It("should stay unconnected and report the failure", func() {
			testProvider.ConnectErr = errors.New("connection refused")

			err := dev.Connect(ctx)
			var cerr *ConnectError
			Expect(errors.As(err, &cerr)).To(BeTrue())
			Expect(cerr.Address).To(Equal("192.0.2.1"))
			Expect(err).To(MatchError(ContainSubstring("connection refused")))
			Expect(dev.State()).To(Equal(Unconnected))
			Expect(out.String()).To(Equal("unable to establish NETCONF session with 192.0.2.1: connection refused\n"))
		})

		It("should be a no-op when already connected", func() {
			Expect(dev.Connect(ctx)).To(Succeed())
			Expect(dev.Connect(ctx)).To(Succeed())
			Expect(testProvider.Connections).To(HaveLen(1))
		})
	})

	Context("ApplyOSPF", func() {
		It("should apply with defaults", func() {
			Expect(dev.Connect(ctx)).To(Succeed())

			res, err := dev.ApplyOSPF(ctx, "1/0/1")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Replies).To(HaveLen(2))
			Expect(testProvider.Requests).To(ConsistOf(provider.OSPFRequest{
				Interface: "1/0/1",
				Area:      provider.DefaultArea,
				RBridgeID: provider.DefaultRBridgeID,
			}))
			Expect(out.String()).To(Equal(
				"OSPF configured successfully on router 192.0.2.1\n" +
					"Interface 1/0/1 is configured successfully with area 0.0.0.0\n",
			))
		})

		It("should pass area and routing bridge", func() {
			Expect(dev.Connect(ctx)).To(Succeed())

			_, err := dev.ApplyOSPF(ctx, "2/0/48", WithArea("0.0.0.10"), WithRBridgeID(2))
			Expect(err).NotTo(HaveOccurred())
			Expect(testProvider.Requests).To(ConsistOf(provider.OSPFRequest{Interface: "2/0/48", Area: "0.0.0.10", RBridgeID: 2}))
			Expect(out.String()).To(ContainSubstring("Interface 2/0/48 is configured successfully with area 0.0.0.10"))
		})

		It("should report a rejected router configuration", func() {
			Expect(dev.Connect(ctx)).To(Succeed())
			testProvider.EnsureErr = &provider.SubmitError{Document: provider.DocumentRouter, Err: errors.New("invalid rbridge-id")}

			res, err := dev.ApplyOSPF(ctx, "1/0/1")
			Expect(res).To(BeNil())
			var serr *provider.SubmitError
			Expect(errors.As(err, &serr)).To(BeTrue())
			Expect(serr.Document).To(Equal(provider.DocumentRouter))
			Expect(out.String()).NotTo(ContainSubstring("OSPF configured successfully"))
			Expect(out.String()).To(HavePrefix("NETCONF edit operation failed: "))
			Expect(dev.State()).To(Equal(Connected))
		})

		It("should report the router success before a rejected interface configuration", func() {
			Expect(dev.Connect(ctx)).To(Succeed())
			testProvider.EnsureErr = &provider.SubmitError{Document: provider.DocumentInterface, Err: errors.New("invalid interface")}

			_, err := dev.ApplyOSPF(ctx, "9/9/9")
			Expect(err).To(HaveOccurred())
			lines := strings.Split(strings.TrimSpace(out.String()), "\n")
			Expect(lines).To(HaveLen(2))
			Expect(lines[0]).To(Equal("OSPF configured successfully on router 192.0.2.1"))
			Expect(lines[1]).To(ContainSubstring("invalid interface"))
		})

		It("should fail without a session", func() {
			_, err := dev.ApplyOSPF(ctx, "1/0/1")
			Expect(err).To(MatchError(ErrNotConnected))
			Expect(testProvider.Requests).To(BeEmpty())
			Expect(out.String()).To(HavePrefix("NETCONF edit operation failed: "))
		})

		It("should fail after close", func() {
			Expect(dev.Connect(ctx)).To(Succeed())
			Expect(dev.Close(ctx)).To(Succeed())

			_, err := dev.ApplyOSPF(ctx, "1/0/1")
			Expect(err).To(MatchError(ErrClosed))
			Expect(testProvider.Requests).To(BeEmpty())
		})

		It("should log the request attributes", func() {
			var logs bytes.Buffer
			log := zap.New(zap.WriteTo(&logs), zap.UseDevMode(false))

			Expect(dev.Connect(ctx)).To(Succeed())
			_, err := dev.ApplyOSPF(logf.IntoContext(ctx, log), "1/0/1", WithArea("0.0.0.10"))
			Expect(err).NotTo(HaveOccurred())

			var found bool
			for line := range strings.Lines(logs.String()) {
				if gjson.Get(line, "msg").String() != "Applying OSPF configuration" {
					continue
				}
				found = true
				Expect(gjson.Get(line, "address").String()).To(Equal("192.0.2.1"))
				Expect(gjson.Get(line, "protocol").String()).To(Equal(provider.Protocol))
				Expect(gjson.Get(line, "interface").String()).To(Equal("1/0/1"))
				Expect(gjson.Get(line, "area").String()).To(Equal("0.0.0.10"))
				Expect(gjson.Get(line, "rbridgeID").Int()).To(BeEquivalentTo(1))
			}
			Expect(found).To(BeTrue())
		})
	})

	Context("OSPFDocuments", func() {
		It("should render the documents of the selected provider without connecting", func() {
			d, err := New(deviceutil.Connection{Address: "192.0.2.1"}, WithProvider(nos.Name), WithOutput(out))
			Expect(err).NotTo(HaveOccurred())

			docs, err := d.OSPFDocuments("2/0/48", WithArea("0.0.0.10"), WithRBridgeID(2))
			Expect(err).NotTo(HaveOccurred())
			Expect(docs).To(HaveLen(2))
			Expect(docs[0].Describe()).To(Equal("rbridge-id 2 router ospf area 0.0.0.10"))
			Expect(docs[1].Describe()).To(Equal("interface TenGigabitEthernet 2/0/48 ip ospf area 0.0.0.10"))
			Expect(d.State()).To(Equal(Unconnected))
			Expect(out.String()).To(BeEmpty())
		})

		It("should fail if the provider cannot render documents", func() {
			_, err := dev.OSPFDocuments("1/0/1")
			Expect(err).To(MatchError(ContainSubstring(`provider "test" cannot render configuration documents`)))
			Expect(testProvider.Connections).To(BeEmpty())
		})
	})

	Context("Close", func() {
		It("should close an open session", func() {
			Expect(dev.Connect(ctx)).To(Succeed())
			Expect(dev.Close(ctx)).To(Succeed())
			Expect(dev.State()).To(Equal(Closed))
			Expect(testProvider.Disconnects).To(Equal(1))
			Expect(out.String()).To(Equal("The session with router 192.0.2.1 closed successfully\n"))
		})

		It("should report a second close", func() {
			Expect(dev.Connect(ctx)).To(Succeed())
			Expect(dev.Close(ctx)).To(Succeed())
			Expect(dev.Close(ctx)).To(MatchError(ErrClosed))
			Expect(testProvider.Disconnects).To(Equal(1))
		})

		It("should report closing an unconnected device", func() {
			Expect(dev.Close(ctx)).To(MatchError(ErrNotConnected))
			Expect(testProvider.Disconnects).To(BeZero())
			Expect(out.String()).To(ContainSubstring("close of session with router 192.0.2.1 failed"))
			Expect(dev.State()).To(Equal(Unconnected))
		})

		It("should end closed when the device does not acknowledge", func() {
			Expect(dev.Connect(ctx)).To(Succeed())
			testProvider.DisconnectErr = errors.New("broken pipe")

			Expect(dev.Close(ctx)).To(MatchError(ContainSubstring("broken pipe")))
			Expect(dev.State()).To(Equal(Closed))
			Expect(dev.Connect(ctx)).To(MatchError(ErrClosed))
		})
	})

	It("should name its states", func() {
		Expect(Unconnected.String()).To(Equal("Unconnected"))
		Expect(Connected.String()).To(Equal("Connected"))
		Expect(Closed.String()).To(Equal("Closed"))
		Expect(State(7).String()).To(Equal("State(7)"))
	})
})
