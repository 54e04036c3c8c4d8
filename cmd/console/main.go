// Command console runs the assistant as a local REPL, with a simulated
// payment command instead of real Mercado Pago checkouts.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	appconfig "github.com/deliciasfueguinas/orderbot/internal/config"
	"github.com/deliciasfueguinas/orderbot/internal/conversation"
	"github.com/deliciasfueguinas/orderbot/internal/inventory"
	"github.com/deliciasfueguinas/orderbot/internal/llm"
	"github.com/deliciasfueguinas/orderbot/internal/notify"
	"github.com/deliciasfueguinas/orderbot/internal/payments"
	"github.com/deliciasfueguinas/orderbot/internal/state"
	"github.com/deliciasfueguinas/orderbot/pkg/logging"
)

const consoleUser = "console"

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New("error")

	store, err := state.NewFileStore(cfg.DataDir, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to open state store:", err)
		os.Exit(1)
	}

	var llmClient llm.Client
	if cfg.LLMAPIKey != "" {
		llmClient = llm.NewOpenAIClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, cfg.LLMTimeout, logger)
	}
	classifier := llm.NewClassifier(llmClient, logger)
	extractor := llm.NewExtractor(llmClient, logger)

	checker := inventory.NewChecker(cfg.ProductsCSV, cfg.FlavorsCSV, logger)
	mpClient := payments.NewMercadoPagoClient(cfg.MPBaseURL, cfg.MPAccessToken, cfg.MPTimeout, logger)
	linkService := payments.NewLinkService(mpClient, nil, cfg.PaymentLinksDir, logger)

	orderHandler := conversation.NewOrderHandler(checker, extractor, linkService, store, nil, logger)
	orchestrator := conversation.NewOrchestrator(store, classifier, orderHandler, llmClient, nil, logger)

	sender := notify.NewConsoleSender(os.Stdout)
	notifier := notify.NewNotifier(store, sender, nil, cfg.NotifyInterval, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go notifier.Run(ctx)

	fmt.Println("Delicias Fueguinas — asistente de pedidos")
	fmt.Println("Escribí tu mensaje, /pagar <estado> para simular un pago, /salir para terminar.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/salir" || line == "/exit" {
			break
		}
		if strings.HasPrefix(line, "/pagar") {
			simulatePayment(store, strings.TrimSpace(strings.TrimPrefix(line, "/pagar")))
			continue
		}

		reply, err := orchestrator.HandleMessage(ctx, consoleUser, line)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			continue
		}
		fmt.Println(reply)
	}
	fmt.Println("¡Hasta luego!")
}

// simulatePayment applies a payment status to the current pending order the
// same way a processor webhook would, keyed by preference id.
func simulatePayment(store state.Store, statusArg string) {
	if statusArg == "" {
		statusArg = "approved"
	}
	st, err := store.GetState(consoleUser)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return
	}
	if st.PendingOrder == nil || st.PendingOrder.PreferenceID == "" {
		fmt.Println("No hay ningún pedido pendiente de pago.")
		return
	}

	status := state.ParsePaymentStatus(statusArg)
	updated := store.UpdatePaymentStatus(st.PendingOrder.PreferenceID, status, map[string]string{
		"payment_id":  "simulated",
		"payer_email": "console@example.com",
	})
	if !updated {
		fmt.Println("No se pudo aplicar el pago simulado.")
		return
	}
	fmt.Printf("Pago simulado aplicado: %s (%s)\n", st.PendingOrder.OrderID, status)
}
