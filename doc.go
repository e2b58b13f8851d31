/*
Package flujos is a conversational flow engine for chat channels (WhatsApp, Instagram, web).

A flow is a directed graph of typed steps: send a message, ask a question, branch on a
condition, classify a reply with AI, write a row, create a task, book an appointment, hand
the conversation to a human, wait, end. Flows are authored and validated with package flows,
started by the trigger rules in package trigger, and executed one step at a time as inbound
messages arrive.

# Concept

Each conversation is an Instance of a flow. The engine walks the graph until a node needs the
user (pregunta, esperar, a mensaje with buttons), hands off to a human, or ends. State is
persisted after every run, so the next message resumes exactly where the conversation stopped,
even after a restart. Every node execution appends one LogEntry; package monitor rebuilds the
path an instance took from that log.

# Key Features

  - Durable Execution: suspended conversations live in the InstanceStore (memory, file, redis).
  - Per-conversation Serialization: messages of one (canal, usuario) pair never run concurrently,
    across replicas when a DistributedLocker is configured.
  - Isolated Side Effects: every adapter call runs under its own timeout and carries an
    idempotency key of the form <instance>:<node>:<visit>.
  - Strict Contracts: graphs are validated before they are saved or activated.

# Usage

	eng := flujos.New(flujos.Stores{
		Flows:     flowStore,
		Instances: instanceStore,
		Logs:      logStore,
	}, flujos.Adapters{
		Messenger: whatsapp,
		AI:        ai,
		Data:      rows,
	}, flujos.WithLogger(logger))

	out, err := eng.HandleInboundMessage(ctx, domain.CanalWhatsApp, "+56911112222", "hola")
	if err != nil {
		log.Fatal(err)
	}
	for _, msg := range out.Enviados {
		fmt.Println(msg.Texto)
	}

Operators act on transferred conversations with Respond, CloseHandoff and ResumeHandoff, and
stop any conversation with Detener. ExpireIdle closes conversations nobody answered.
*/
package flujos
