package conversation

import (
	"fmt"
	"strings"

	"github.com/deliciasfueguinas/orderbot/internal/inventory"
	"github.com/deliciasfueguinas/orderbot/internal/state"
)

const (
	greetingFallback = "¡Hola! Bienvenido a Delicias Fueguinas 🍦 ¿En qué puedo ayudarte hoy? Podés preguntarme por nuestros productos o hacer tu pedido."

	queryFallback = "Tenemos helados artesanales, empanadas y bebidas. Decime qué te gustaría pedir y te confirmo disponibilidad y precio."

	otherFallback = "Disculpá, no entendí tu mensaje. ¿Querés hacer un pedido o consultar por nuestros productos?"

	emptyOrderMessage = "No pude identificar productos en tu mensaje. ¿Me decís qué querés pedir y en qué cantidad? Por ejemplo: \"quiero 2 empanadas de carne y un cuarto de helado\"."

	orderApology = "Disculpá, tuvimos un problema procesando tu pedido. Por favor intentá de nuevo en unos minutos."
)

// buildAlternativesMessage lists what could not be fulfilled and asks the
// customer to choose replacements.
func buildAlternativesMessage(check *inventory.OrderCheck, flavors *inventory.FlavorCheck) string {
	var b strings.Builder
	b.WriteString("Algunos productos de tu pedido no están disponibles:\n")

	if check != nil {
		for _, name := range check.NotFound {
			fmt.Fprintf(&b, "• %s: no encontramos este producto en nuestro menú\n", name)
		}
		for _, short := range check.OutOfStock {
			if short.AvailableStock > 0 {
				fmt.Fprintf(&b, "• %s: solo nos quedan %d unidades\n", short.Product, short.AvailableStock)
			} else {
				fmt.Fprintf(&b, "• %s: sin stock por el momento\n", short.Product)
			}
		}
	}
	if flavors != nil {
		for _, flavor := range flavors.Unavailable {
			fmt.Fprintf(&b, "• sabor %s: no disponible hoy\n", flavor)
		}
	}

	b.WriteString("\n¿Querés reemplazarlos por otra cosa? Decime qué alternativa preferís y seguimos con tu pedido.")
	return b.String()
}

// buildPaymentMessage summarizes the confirmed order and hands over the
// checkout link.
func buildPaymentMessage(order *state.OrderRecord) string {
	var b strings.Builder
	b.WriteString("¡Perfecto! Tu pedido quedó así:\n")
	for _, it := range order.Items {
		fmt.Fprintf(&b, "• %s x%d: $%.2f\n", it.Name, it.Quantity, it.Subtotal)
	}
	fmt.Fprintf(&b, "\nTotal: $%.2f\n\n", order.TotalAmount)
	fmt.Fprintf(&b, "Podés pagar acá: %s\n\n", order.InitPoint)
	b.WriteString("Apenas se acredite el pago te confirmamos por este medio. ¡Gracias por tu compra! 🍦")
	return b.String()
}

// buildCombinedPaymentMessage is the variant sent after the customer picked
// replacements for unavailable items.
func buildCombinedPaymentMessage(order *state.OrderRecord) string {
	var b strings.Builder
	b.WriteString("¡Listo! Combiné tu pedido original con las alternativas:\n")
	for _, it := range order.Items {
		fmt.Fprintf(&b, "• %s x%d: $%.2f\n", it.Name, it.Quantity, it.Subtotal)
	}
	fmt.Fprintf(&b, "\nTotal: $%.2f\n\n", order.TotalAmount)
	fmt.Fprintf(&b, "Podés pagar acá: %s\n\n", order.InitPoint)
	b.WriteString("Apenas se acredite el pago te confirmamos por este medio. ¡Gracias por tu compra! 🍦")
	return b.String()
}
