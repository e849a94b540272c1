// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package nos

import (
	"encoding/xml"
	"strconv"

	"github.com/ironcore-dev/netconf-ospf/internal/netconfext"
)

// Namespaces of the Brocade Network OS YANG modules touched by the OSPF documents.
const (
	InterfaceNamespace = "urn:brocade.com:mgmt:brocade-interface"
	OSPFNamespace      = "urn:brocade.com:mgmt:brocade-ospf"
	RBridgeNamespace   = "urn:brocade.com:mgmt:brocade-rbridge"
)

// DefaultVRF is the VRF the OSPF process is created in.
const DefaultVRF = "default-vrf"

var (
	_ netconfext.Document = (*InterfaceConfig)(nil)
	_ netconfext.Document = (*RouterConfig)(nil)
)

// InterfaceConfig attaches a ten gigabit ethernet interface to an OSPF area.
type InterfaceConfig struct {
	XMLName   xml.Name      `xml:"config"`
	Interface InterfaceList `xml:"urn:brocade.com:mgmt:brocade-interface interface"`
}

type InterfaceList struct {
	TenGigabitEthernet TenGigabitEthernet `xml:"tengigabitethernet"`
}

type TenGigabitEthernet struct {
	Name string      `xml:"name"`
	IP   InterfaceIP `xml:"ip"`
}

type InterfaceIP struct {
	OSPF InterfaceOSPF `xml:"urn:brocade.com:mgmt:brocade-ospf interface-te-ospf-conf"`
}

type InterfaceOSPF struct {
	Config struct {
		Area string `xml:"area"`
	} `xml:"ospf-interface-config"`
}

func (c *InterfaceConfig) Describe() string {
	return "interface TenGigabitEthernet " + c.Interface.TenGigabitEthernet.Name + " ip ospf area " + c.Area()
}

// Area returns the OSPF area the interface is attached to.
func (c *InterfaceConfig) Area() string {
	return c.Interface.TenGigabitEthernet.IP.OSPF.Config.Area
}

// RouterConfig enables an OSPF process on a routing bridge and registers the area with it.
type RouterConfig struct {
	XMLName xml.Name `xml:"config"`
	RBridge RBridge  `xml:"urn:brocade.com:mgmt:brocade-rbridge rbridge-id"`
}

type RBridge struct {
	ID     string `xml:"rbridge-id"`
	Router struct {
		OSPF RouterOSPF `xml:"urn:brocade.com:mgmt:brocade-ospf ospf"`
	} `xml:"router"`
}

type RouterOSPF struct {
	VRF  string `xml:"vrf"`
	Area struct {
		ID string `xml:"area-id"`
	} `xml:"area"`
}

func (c *RouterConfig) Describe() string {
	return "rbridge-id " + c.RBridge.ID + " router ospf area " + c.RBridge.Router.OSPF.Area.ID
}

// NewOSPF builds the two documents that enable OSPF for the interface.
// Inputs are used as given; the device is the authority on their validity.
func NewOSPF(interfaceName, area string, rbridgeID int) (*InterfaceConfig, *RouterConfig) {
	iface := &InterfaceConfig{}
	iface.Interface.TenGigabitEthernet.Name = interfaceName
	iface.Interface.TenGigabitEthernet.IP.OSPF.Config.Area = area

	router := &RouterConfig{}
	router.RBridge.ID = strconv.Itoa(rbridgeID)
	router.RBridge.Router.OSPF.VRF = DefaultVRF
	router.RBridge.Router.OSPF.Area.ID = area

	return iface, router
}
