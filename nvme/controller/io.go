package controller

import (
	"example.com/nvmesim/nvme/namespace"
	"example.com/nvmesim/nvme/prp"
	"example.com/nvmesim/nvme/wire"
)

func (c *Controller) handleRead(ns *namespace.Namespace, cmd wire.Command, mps uint32) wire.Completion {
	args := wire.DecodeIOArgs(cmd)

	payload, err := ns.Read(args.SLBA, args.NLB)
	if err != nil {
		return wire.Error(wire.StatusTypeGeneric, wire.StatusLBAOutOfRange)
	}
	defer payload.Close()

	p := prp.FromAddresses(cmd.PRP1, cmd.PRP2, uint32(payload.Size()), mps)
	if ok, err := p.Scatter(payload); err != nil || !ok {
		return wire.Error(wire.StatusTypeGeneric, wire.StatusInvalidField)
	}
	return wire.Success()
}

func (c *Controller) handleWrite(ns *namespace.Namespace, cmd wire.Command, mps uint32) wire.Completion {
	args := wire.DecodeIOArgs(cmd)

	numBytes := uint64(args.NLB+1) * ns.SectorSize()
	p := prp.FromAddresses(cmd.PRP1, cmd.PRP2, uint32(numBytes), mps)

	data, err := p.Gather()
	if err != nil {
		return wire.Error(wire.StatusTypeGeneric, wire.StatusInvalidField)
	}
	defer data.Close()

	if err := ns.Write(args.SLBA, args.NLB, data.Buffer()); err != nil {
		return wire.Error(wire.StatusTypeGeneric, wire.StatusLBAOutOfRange)
	}
	return wire.Success()
}
