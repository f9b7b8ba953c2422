package node

import (
	"fmt"

	"github.com/mosaicnetworks/ledgerdriver/src/net"
	"github.com/sirupsen/logrus"
)

func (n *Node) requestRegister(target string) (net.RegisterResponse, error) {
	args := net.RegisterRequest{Node: n.info}

	var out net.RegisterResponse
	err := n.trans.Register(target, &args, &out)
	return out, err
}

func (n *Node) requestJoin(target string) (net.JoinResponse, error) {
	serviceID := ""
	n.cluster.Locked(func(c *cluster) { serviceID = c.serviceID })

	args := net.JoinRequest{
		ServiceID: serviceID,
		Member:    n.info.LegalIdentity,
		Address:   n.conf.NotaryNodeAddress,
	}

	var out net.JoinResponse
	err := n.clusterTrans.Join(target, &args, &out)
	return out, err
}

func (n *Node) processRPC(rpc net.RPC) {
	switch cmd := rpc.Command.(type) {
	case *net.RegisterRequest:
		n.processRegisterRequest(rpc, cmd)
	case *net.JoinRequest:
		n.processJoinRequest(rpc, cmd)
	default:
		n.logger.WithField("cmd", rpc.Command).Error("Unexpected RPC command")
		rpc.Respond(nil, fmt.Errorf("unexpected command"))
	}
}

func (n *Node) processRegisterRequest(rpc net.RPC, cmd *net.RegisterRequest) {
	if n.registry == nil {
		rpc.Respond(&net.RegisterResponse{}, fmt.Errorf("%s is not the network map", n.conf.MyLegalName))
		return
	}

	size, err := n.registry.Register(cmd.Node)
	if err != nil {
		n.logger.WithError(err).Error("Registering node")
		rpc.Respond(&net.RegisterResponse{}, err)
		return
	}

	n.logger.WithFields(logrus.Fields{
		"name":    cmd.Node.LegalIdentity.Name,
		"address": cmd.Node.Address,
	}).Debug("Node registered")

	rpc.Respond(&net.RegisterResponse{Accepted: true, Size: size}, nil)
}

func (n *Node) processJoinRequest(rpc net.RPC, cmd *net.JoinRequest) {
	if !n.isSeed() {
		rpc.Respond(&net.JoinResponse{}, fmt.Errorf("%s is not the notary cluster seed", n.conf.MyLegalName))
		return
	}

	resp := net.JoinResponse{}
	n.cluster.Locked(func(c *cluster) {
		if cmd.ServiceID != c.serviceID {
			return
		}
		resp.Accepted = true
		known := false
		for _, m := range c.members {
			if m == cmd.Address {
				known = true
			}
		}
		if !known {
			c.members = append(c.members, cmd.Address)
		}
		resp.Members = append([]string(nil), c.members...)
	})

	n.logger.WithFields(logrus.Fields{
		"member":   cmd.Member.Name,
		"address":  cmd.Address,
		"accepted": resp.Accepted,
	}).Info("JoinRequest")

	rpc.Respond(&resp, nil)
}
